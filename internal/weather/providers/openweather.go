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

// OpenWeatherBaseURL is the current-weather endpoint of OpenWeatherMap.
const OpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	baseProvider
	apiKey string
}

type openWeatherResponse struct {
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		baseProvider: newBaseProvider("openweathermap", OpenWeatherBaseURL, client, opts),
		apiKey:       apiKey,
	}
}

// FetchCurrent queries current conditions in metric units. Queries made of
// digits only are sent as zip codes, anything else as a city name.
func (p *OpenWeatherProvider) FetchCurrent(ctx context.Context, query string) (*weather.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	if isZipCode(query) {
		values.Set("zip", query)
	} else {
		values.Set("q", query)
	}

	resp, err := p.get(ctx, query, values)
	if err != nil {
		if isNoData(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("openweather: %w", err)
	}
	defer resp.Body.Close()

	// 404 is "city not found".
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openweather: decode response: %w", err)
	}

	ts := time.Now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	var condition string
	if len(payload.Weather) > 0 {
		condition = payload.Weather[0].Description
		if condition == "" {
			condition = payload.Weather[0].Main
		}
	}

	return &weather.Observation{
		ProviderName: p.name,
		Location:     strings.TrimSpace(payload.Name),
		Country:      payload.Sys.Country,
		Timestamp:    ts,
		TemperatureC: payload.Main.Temp,
		HumidityPct:  payload.Main.Humidity,
		Condition:    condition,
	}, nil
}

func isZipCode(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}
	for _, r := range strings.ReplaceAll(q, "-", "") {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
