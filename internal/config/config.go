package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Port string `mapstructure:"PORT" validate:"required,numeric"`

	// Provider selects the upstream weather provider.
	Provider          string `mapstructure:"WEATHER_PROVIDER" validate:"oneof=weatherapi openweather"`
	WeatherAPIKey     string `mapstructure:"WEATHERAPI_API_KEY"`
	OpenWeatherAPIKey string `mapstructure:"OPENWEATHER_API_KEY"`

	// UpstreamBaseURL overrides the provider's default endpoint.
	UpstreamBaseURL    string        `mapstructure:"UPSTREAM_BASE_URL" validate:"omitempty,url"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT" validate:"gt=0"`
	UpstreamMaxRetries int           `mapstructure:"UPSTREAM_MAX_RETRIES" validate:"gte=0,lte=10"`
	// UpstreamRateLimit is requests per second; 0 disables pacing.
	UpstreamRateLimit  float64       `mapstructure:"UPSTREAM_RATE_LIMIT" validate:"gte=0"`

	// Database. For mysql add clientFoundRows=true to the DSN so updates
	// that change nothing still report the matched row.
	DBDriver string `mapstructure:"DB_DRIVER" validate:"oneof=sqlite mysql memory"`
	DBDSN    string `mapstructure:"DB_DSN" validate:"required_unless=DBDriver memory"`

	// RefreshInterval controls how often every stored location is reconciled.
	RefreshInterval      time.Duration `mapstructure:"REFRESH_INTERVAL" validate:"gte=1s"`
	ReconcileTimeout     time.Duration `mapstructure:"RECONCILE_TIMEOUT" validate:"gte=0"`
	ReconcileConcurrency int           `mapstructure:"RECONCILE_CONCURRENCY" validate:"gte=1,lte=64"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`

	// ZipkinEndpoint enables span export when set.
	ZipkinEndpoint string `mapstructure:"ZIPKIN_ENDPOINT" validate:"omitempty,url"`
}

var defaults = map[string]any{
	"PORT":                  "8080",
	"WEATHER_PROVIDER":      "weatherapi",
	"WEATHERAPI_API_KEY":    "",
	"OPENWEATHER_API_KEY":   "",
	"UPSTREAM_BASE_URL":     "",
	"HTTP_TIMEOUT":          "10s",
	"UPSTREAM_MAX_RETRIES":  3,
	"UPSTREAM_RATE_LIMIT":   5,
	"DB_DRIVER":             "sqlite",
	"DB_DSN":                "weather.db",
	"REFRESH_INTERVAL":      "1h",
	"RECONCILE_TIMEOUT":     "5m",
	"RECONCILE_CONCURRENCY": 4,
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
	"ZIPKIN_ENDPOINT":       "",
}

var validate = validator.New()

// Load reads configuration from .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromViper(viper.New())
}

// FromViper fills an AppConfig from v, which is bound to the environment
// and seeded with defaults for every key.
func FromViper(v *viper.Viper) (*AppConfig, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// APIKey returns the key for the configured provider.
func (c *AppConfig) APIKey() string {
	if c.Provider == "openweather" {
		return c.OpenWeatherAPIKey
	}
	return c.WeatherAPIKey
}
