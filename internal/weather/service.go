package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-records/internal/metrics"
)

const defaultConcurrency = 4

// Service orchestrates the record store and the upstream provider.
type Service struct {
	store    Store
	provider Provider

	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	concurrency int

	// mergeMu serializes the lookup/merge/flush phase of every pass.
	mergeMu sync.Mutex
	flight  singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors the service reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConcurrency bounds the number of parallel provider fetches in one pass.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		provider:    provider,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "weather")
	return s
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id uint) (*Record, error) {
	return s.store.Get(ctx, id)
}

// List returns every stored record ordered by id.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// Create stores a new record. UpdatedAt defaults to the current time.
func (s *Service) Create(ctx context.Context, in RecordInput) (*Record, error) {
	location, err := normalizeLocation(in.Location)
	if err != nil {
		return nil, err
	}

	rec := &Record{Location: location, UpdatedAt: s.now()}
	if in.UpdatedAt != nil && !in.UpdatedAt.IsZero() {
		rec.UpdatedAt = in.UpdatedAt.UTC()
	}
	applyInput(rec, in)

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("weather record created", "id", rec.ID, "location", rec.Location)
	return rec, nil
}

// Update replaces the editable fields of an existing record and moves its
// UpdatedAt strictly forward.
func (s *Service) Update(ctx context.Context, id uint, in RecordInput) (*Record, error) {
	location, err := normalizeLocation(in.Location)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Location = location
	applyInput(rec, in)
	rec.UpdatedAt = s.after(rec.UpdatedAt)

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("weather record updated", "id", rec.ID, "location", rec.Location)
	return rec, nil
}

// Delete removes the record with the given id.
func (s *Service) Delete(ctx context.Context, id uint) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, rec); err != nil {
		return err
	}
	s.logger.Info("weather record deleted", "id", rec.ID, "location", rec.Location)
	return nil
}

// after returns the current time, or prev plus a millisecond if the clock
// has not moved past prev.
func (s *Service) after(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

func normalizeLocation(raw string) (string, error) {
	location := strings.TrimSpace(raw)
	if location == "" {
		return "", fmt.Errorf("%w: location is required", ErrValidation)
	}
	return location, nil
}

func applyInput(rec *Record, in RecordInput) {
	if in.Temperature != nil {
		rec.Temperature = *in.Temperature
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	if in.Humidity != nil {
		rec.Humidity = *in.Humidity
	}
}
