package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weatherAPISuccessResponse = `{
  "location": {
    "name": "London",
    "region": "City of London, Greater London",
    "country": "United Kingdom",
    "localtime_epoch": 1709294400
  },
  "current": {
    "last_updated_epoch": 1709294100,
    "temp_c": 9.0,
    "humidity": 81,
    "condition": { "text": "Light rain", "code": 1183 }
  }
}`

const weatherAPINoMatchResponse = `{"error":{"code":1006,"message":"No matching location found."}}`

func newTestWeatherAPI(t *testing.T, apiKey string) (*WeatherAPIProvider, *httpmock.MockTransport) {
	t.Helper()
	client, transport := newMockClient(t)
	return NewWeatherAPIProvider(client, apiKey, WithBackoff(fastBackoff)), transport
}

func TestWeatherAPIProvider_FetchCurrent_Success(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "secret")

	var got *http.Request
	transport.RegisterResponder(http.MethodGet, WeatherAPIBaseURL,
		func(req *http.Request) (*http.Response, error) {
			got = req
			return httpmock.NewStringResponse(http.StatusOK, weatherAPISuccessResponse), nil
		})

	obs, err := p.FetchCurrent(context.Background(), "London")
	require.NoError(t, err)
	require.NotNil(t, obs)

	assert.Equal(t, "weatherapi", obs.ProviderName)
	assert.Equal(t, "London", obs.Location)
	assert.Equal(t, "United Kingdom", obs.Country)
	assert.InDelta(t, 9.0, obs.TemperatureC, 0.001)
	assert.Equal(t, 81, obs.HumidityPct)
	assert.Equal(t, "Light rain", obs.Condition)
	assert.Equal(t, time.Unix(1709294100, 0).UTC(), obs.Timestamp)

	require.NotNil(t, got)
	assert.Equal(t, "secret", got.URL.Query().Get("key"))
	assert.Equal(t, "London", got.URL.Query().Get("q"))
	assert.Equal(t, "no", got.URL.Query().Get("aqi"))
	assert.Equal(t, userAgent, got.Header.Get("User-Agent"))
}

func TestWeatherAPIProvider_FetchCurrent_ZipQuery(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "secret")
	transport.RegisterResponderWithQuery(http.MethodGet, WeatherAPIBaseURL,
		map[string]string{"key": "secret", "q": "10001", "aqi": "no"},
		httpmock.NewStringResponder(http.StatusOK, `{"location":{"name":"New York"},"current":{"temp_c":20,"humidity":50,"condition":{"text":"Sunny"}}}`))

	obs, err := p.FetchCurrent(context.Background(), "10001")
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, "New York", obs.Location)
	assert.False(t, obs.Timestamp.IsZero())
}

func TestWeatherAPIProvider_FetchCurrent_NoMatch(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "secret")
	transport.RegisterResponder(http.MethodGet, WeatherAPIBaseURL,
		httpmock.NewStringResponder(http.StatusBadRequest, weatherAPINoMatchResponse))

	obs, err := p.FetchCurrent(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, obs)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestWeatherAPIProvider_FetchCurrent_NonSuccessIsAbsent(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		calls      int
	}{
		{"unauthorized", http.StatusUnauthorized, 1},
		{"forbidden", http.StatusForbidden, 1},
		{"rate_limited", http.StatusTooManyRequests, fastBackoff.MaxRetries + 1},
		{"internal_server_error", http.StatusInternalServerError, fastBackoff.MaxRetries + 1},
		{"bad_gateway", http.StatusBadGateway, fastBackoff.MaxRetries + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, transport := newTestWeatherAPI(t, "secret")
			transport.RegisterResponder(http.MethodGet, WeatherAPIBaseURL,
				httpmock.NewStringResponder(tt.statusCode, `{}`))

			obs, err := p.FetchCurrent(context.Background(), "London")
			require.NoError(t, err)
			assert.Nil(t, obs)
			assert.Equal(t, tt.calls, transport.GetTotalCallCount())
		})
	}
}

func TestWeatherAPIProvider_FetchCurrent_TransportError(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "secret")
	transport.RegisterResponder(http.MethodGet, WeatherAPIBaseURL,
		httpmock.NewErrorResponder(errors.New("no route to host")))

	obs, err := p.FetchCurrent(context.Background(), "London")
	require.Error(t, err)
	assert.Nil(t, obs)
	assert.Contains(t, err.Error(), "weatherapi")
}

func TestWeatherAPIProvider_FetchCurrent_InvalidJSON(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "secret")
	transport.RegisterResponder(http.MethodGet, WeatherAPIBaseURL,
		httpmock.NewStringResponder(http.StatusOK, `{invalid json`))

	obs, err := p.FetchCurrent(context.Background(), "London")
	require.Error(t, err)
	assert.Nil(t, obs)
}

func TestWeatherAPIProvider_FetchCurrent_NoAPIKey(t *testing.T) {
	p, transport := newTestWeatherAPI(t, "")

	obs, err := p.FetchCurrent(context.Background(), "London")
	require.ErrorIs(t, err, errNoAPIKey)
	assert.Nil(t, obs)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestWeatherAPIProvider_BaseURLOverride(t *testing.T) {
	client, transport := newMockClient(t)
	p := NewWeatherAPIProvider(client, "secret", WithBaseURL("http://localhost:9999/current.json"))
	transport.RegisterResponder(http.MethodGet, "http://localhost:9999/current.json",
		httpmock.NewStringResponder(http.StatusOK, weatherAPISuccessResponse))

	obs, err := p.FetchCurrent(context.Background(), "London")
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}
