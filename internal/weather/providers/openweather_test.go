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

const openWeatherSuccessResponse = `{
  "coord": { "lon": 24.9384, "lat": 60.1699 },
  "weather": [ { "id": 803, "main": "Clouds", "description": "broken clouds", "icon": "04d" } ],
  "main": { "temp": 14.55, "feels_like": 13.88, "pressure": 1014, "humidity": 72 },
  "dt": 1736769600,
  "sys": { "country": "FI" },
  "name": "Helsinki",
  "cod": 200
}`

func newTestOpenWeather(t *testing.T, apiKey string) (*OpenWeatherProvider, *httpmock.MockTransport) {
	t.Helper()
	client, transport := newMockClient(t)
	return NewOpenWeatherProvider(client, apiKey, WithBackoff(fastBackoff)), transport
}

func TestOpenWeatherProvider_FetchCurrent_Success(t *testing.T) {
	p, transport := newTestOpenWeather(t, "secret")
	transport.RegisterResponderWithQuery(http.MethodGet, OpenWeatherBaseURL,
		map[string]string{"appid": "secret", "units": "metric", "q": "Helsinki"},
		httpmock.NewStringResponder(http.StatusOK, openWeatherSuccessResponse))

	obs, err := p.FetchCurrent(context.Background(), "Helsinki")
	require.NoError(t, err)
	require.NotNil(t, obs)

	assert.Equal(t, "openweathermap", obs.ProviderName)
	assert.Equal(t, "Helsinki", obs.Location)
	assert.Equal(t, "FI", obs.Country)
	assert.InDelta(t, 14.55, obs.TemperatureC, 0.01)
	assert.Equal(t, 72, obs.HumidityPct)
	assert.Equal(t, "broken clouds", obs.Condition)
	assert.Equal(t, time.Unix(1736769600, 0).UTC(), obs.Timestamp)
}

func TestOpenWeatherProvider_FetchCurrent_ZipQuery(t *testing.T) {
	p, transport := newTestOpenWeather(t, "secret")
	transport.RegisterResponderWithQuery(http.MethodGet, OpenWeatherBaseURL,
		map[string]string{"appid": "secret", "units": "metric", "zip": "10001"},
		httpmock.NewStringResponder(http.StatusOK, `{"name":"New York","main":{"temp":20,"humidity":50},"weather":[{"main":"Clear"}]}`))

	obs, err := p.FetchCurrent(context.Background(), "10001")
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, "New York", obs.Location)
	assert.Equal(t, "Clear", obs.Condition)
}

func TestOpenWeatherProvider_FetchCurrent_EmptyWeatherArray(t *testing.T) {
	p, transport := newTestOpenWeather(t, "secret")
	transport.RegisterResponder(http.MethodGet, OpenWeatherBaseURL,
		httpmock.NewStringResponder(http.StatusOK, `{"name":"Helsinki","main":{"temp":1,"humidity":90},"weather":[]}`))

	obs, err := p.FetchCurrent(context.Background(), "Helsinki")
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Empty(t, obs.Condition)
}

func TestOpenWeatherProvider_FetchCurrent_NonSuccessIsAbsent(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"not_found", http.StatusNotFound},
		{"unauthorized", http.StatusUnauthorized},
		{"service_unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, transport := newTestOpenWeather(t, "secret")
			transport.RegisterResponder(http.MethodGet, OpenWeatherBaseURL,
				httpmock.NewStringResponder(tt.statusCode, `{"cod":"404","message":"city not found"}`))

			obs, err := p.FetchCurrent(context.Background(), "Atlantis")
			require.NoError(t, err)
			assert.Nil(t, obs)
		})
	}
}

func TestOpenWeatherProvider_FetchCurrent_TransportError(t *testing.T) {
	p, transport := newTestOpenWeather(t, "secret")
	transport.RegisterResponder(http.MethodGet, OpenWeatherBaseURL,
		httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	obs, err := p.FetchCurrent(context.Background(), "Helsinki")
	require.Error(t, err)
	assert.Nil(t, obs)
}

func TestOpenWeatherProvider_FetchCurrent_InvalidJSON(t *testing.T) {
	p, transport := newTestOpenWeather(t, "secret")
	transport.RegisterResponder(http.MethodGet, OpenWeatherBaseURL,
		httpmock.NewStringResponder(http.StatusOK, `{invalid json`))

	obs, err := p.FetchCurrent(context.Background(), "Helsinki")
	require.Error(t, err)
	assert.Nil(t, obs)
}

func TestOpenWeatherProvider_FetchCurrent_NoAPIKey(t *testing.T) {
	p, transport := newTestOpenWeather(t, "")

	obs, err := p.FetchCurrent(context.Background(), "Helsinki")
	require.ErrorIs(t, err, errNoAPIKey)
	assert.Nil(t, obs)
	assert.Zero(t, transport.GetTotalCallCount())
}
