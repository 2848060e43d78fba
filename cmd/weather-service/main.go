package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-records/internal/config"
	"github.com/i474232898/weather-records/internal/metrics"
	"github.com/i474232898/weather-records/internal/store"
	"github.com/i474232898/weather-records/internal/telemetry"
	"github.com/i474232898/weather-records/internal/weather"
	"github.com/i474232898/weather-records/internal/weather/providers"
)

const serviceName = "weather-records"

func main() {
	root := &cobra.Command{
		Use:           "weather-service",
		Short:         "Stores weather records per location and keeps them fresh",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the hourly refresh job",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Reconcile every stored location once and exit",
			RunE:  runRefresh,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the process-wide components shared by every command.
type app struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	registry *prometheus.Registry
	service  *weather.Service

	closers []func(context.Context) error
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdownTracing, err := telemetry.Setup(serviceName, cfg.ZipkinEndpoint)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	m, err := metrics.New(a.registry)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	recordStore, err := newStore(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if gs, ok := recordStore.(*store.GormStore); ok {
		a.closers = append(a.closers, func(context.Context) error { return gs.Close() })
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := newProvider(cfg, httpClient, m)
	if cfg.APIKey() == "" {
		logger.Warn("no API key configured for weather provider; every fetch will fail", "provider", provider.Name())
	}

	a.service = weather.NewService(recordStore, provider,
		weather.WithLogger(logger),
		weather.WithMetrics(m),
		weather.WithConcurrency(cfg.ReconcileConcurrency),
	)
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("error during shutdown", "error", err)
		}
	}
}

func newLogger(cfg *config.AppConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", serviceName)
}

func newStore(cfg *config.AppConfig, logger *slog.Logger) (weather.Store, error) {
	if cfg.DBDriver == store.DriverMemory {
		logger.Warn("using in-memory store; records are lost on exit")
		return store.NewMemoryStore(), nil
	}
	s, err := store.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "driver", cfg.DBDriver)
	return s, nil
}

func newProvider(cfg *config.AppConfig, client *http.Client, m *metrics.Metrics) weather.Provider {
	backoff := providers.DefaultBackoff
	backoff.MaxRetries = cfg.UpstreamMaxRetries

	opts := []providers.Option{
		providers.WithBaseURL(cfg.UpstreamBaseURL),
		providers.WithBackoff(backoff),
		providers.WithRateLimit(cfg.UpstreamRateLimit, cfg.ReconcileConcurrency),
		providers.WithMetrics(m),
	}
	if cfg.Provider == "openweather" {
		return providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey, opts...)
	}
	return providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey, opts...)
}
