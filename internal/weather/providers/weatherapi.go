package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/weather-records/internal/weather"
)

// WeatherAPIBaseURL is the current-conditions endpoint of WeatherAPI.com.
const WeatherAPIBaseURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	baseProvider
	apiKey string
}

// weatherAPIResponse is the subset of the current.json payload we read.
type weatherAPIResponse struct {
	Location struct {
		Name           string `json:"name"`
		Region         string `json:"region"`
		Country        string `json:"country"`
		LocaltimeEpoch int64  `json:"localtime_epoch"`
	} `json:"location"`
	Current struct {
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
		TempC            float64 `json:"temp_c"`
		Humidity         int     `json:"humidity"`
		Condition        struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		baseProvider: newBaseProvider("weatherapi", WeatherAPIBaseURL, client, opts),
		apiKey:       apiKey,
	}
}

// FetchCurrent queries current conditions. WeatherAPI accepts city names,
// zip/post codes and "lat,lon" in the same q parameter.
func (p *WeatherAPIProvider) FetchCurrent(ctx context.Context, query string) (*weather.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", query)
	values.Set("aqi", "no")

	resp, err := p.get(ctx, query, values)
	if err != nil {
		if isNoData(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("weatherapi: %w", err)
	}
	defer resp.Body.Close()

	// 400 with error code 1006 is "No matching location found".
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	var payload weatherAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("weatherapi: decode response: %w", err)
	}

	ts := time.Now().UTC()
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC()
	}

	return &weather.Observation{
		ProviderName: p.name,
		Location:     strings.TrimSpace(payload.Location.Name),
		Region:       payload.Location.Region,
		Country:      payload.Location.Country,
		Timestamp:    ts,
		TemperatureC: payload.Current.TempC,
		HumidityPct:  payload.Current.Humidity,
		Condition:    payload.Current.Condition.Text,
	}, nil
}
