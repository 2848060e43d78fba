package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Reconciliation triggers, used for logging and metric labels.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerSearch   = "search"
	TriggerCLI      = "cli"
)

const refreshAllKey = "refresh-all"

var tracer = otel.Tracer("github.com/i474232898/weather-records/internal/weather")

type triggerKey struct{}

// WithTrigger tags ctx with the name of whatever started a reconciliation.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerAPI
}

type fetchResult struct {
	query string
	obs   *Observation
	err   error
}

// RefreshAll reconciles every distinct location currently in the store.
// Concurrent callers share a single in-flight pass.
func (s *Service) RefreshAll(ctx context.Context) (Summary, error) {
	v, err, shared := s.flight.Do(refreshAllKey, func() (any, error) {
		locations, err := s.store.Locations(ctx)
		if err != nil {
			err = fmt.Errorf("%w: list locations: %w", ErrInternal, err)
			s.logger.Error("refresh aborted", "trigger", triggerFrom(ctx), "error", err)
			s.metrics.ObserveRun(triggerFrom(ctx), err, 0)
			return Summary{}, err
		}
		return s.Reconcile(ctx, locations)
	})
	if shared {
		s.logger.Debug("joined in-flight refresh", "trigger", triggerFrom(ctx))
	}
	sum, _ := v.(Summary)
	return sum, err
}

// Reconcile fetches current conditions for each location and upserts the
// results in a single flush. A failed or empty fetch only skips its own
// location. Store failures abort the pass without committing anything.
func (s *Service) Reconcile(ctx context.Context, locations []string) (sum Summary, err error) {
	started := time.Now()
	trigger := triggerFrom(ctx)
	sum = Summary{RunID: uuid.NewString(), Locations: len(locations)}
	log := s.logger.With("run_id", sum.RunID, "trigger", trigger)

	ctx, span := tracer.Start(ctx, "weather.Reconcile", trace.WithAttributes(
		attribute.String("weather.trigger", trigger),
		attribute.Int("weather.locations", len(locations)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInternal, r)
		}
		sum.Duration = time.Since(started)
		s.metrics.ObserveRun(trigger, err, sum.Duration)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("reconciliation aborted", "error", err, "duration", sum.Duration)
			return
		}
		log.Info("reconciliation completed",
			"locations", sum.Locations,
			"updated", sum.Updated,
			"created", sum.Created,
			"missed", sum.Missed,
			"failed", sum.Failed,
			"duration", sum.Duration,
		)
	}()

	log.Info("reconciliation started", "locations", len(locations))

	var hits []fetchResult
	for _, r := range s.fetchAll(ctx, locations, log) {
		switch {
		case r.err != nil:
			sum.Failed++
		case r.obs == nil:
			sum.Missed++
		default:
			hits = append(hits, r)
		}
	}
	s.metrics.AddLocations("failed", sum.Failed)
	s.metrics.AddLocations("miss", sum.Missed)

	if len(hits) == 0 {
		return sum, nil
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	pending, created, err := s.merge(ctx, hits)
	if err != nil {
		return sum, err
	}
	if err := s.store.SaveAll(ctx, pending); err != nil {
		return sum, fmt.Errorf("%w: flush: %w", ErrInternal, err)
	}

	sum.Created = created
	sum.Updated = len(pending) - created
	s.metrics.AddLocations("created", sum.Created)
	s.metrics.AddLocations("updated", sum.Updated)
	return sum, nil
}

// ReconcileOne fetches and upserts a single location identified by city
// name or zip code, returning the stored record.
func (s *Service) ReconcileOne(ctx context.Context, req SearchRequest) (*Record, error) {
	query := req.Query()
	if query == "" {
		return nil, fmt.Errorf("%w: city or zip code is required", ErrValidation)
	}

	v, err, _ := s.flight.Do("search:"+strings.ToLower(query), func() (any, error) {
		return s.reconcileOne(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

func (s *Service) reconcileOne(ctx context.Context, query string) (rec *Record, err error) {
	started := time.Now()
	trigger := triggerFrom(ctx)
	log := s.logger.With("trigger", trigger, "location", query)

	ctx, span := tracer.Start(ctx, "weather.ReconcileOne", trace.WithAttributes(
		attribute.String("weather.trigger", trigger),
		attribute.String("weather.query", query),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInternal, r)
			log.Error("search reconciliation panicked", "panic", r)
		}
		s.metrics.ObserveRun(trigger, err, time.Since(started))
		if err != nil && !errors.Is(err, ErrNoData) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	res := s.fetchOne(ctx, query, log)
	switch {
	case res.err != nil:
		s.metrics.AddLocations("failed", 1)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, res.err)
	case res.obs == nil:
		s.metrics.AddLocations("miss", 1)
		return nil, ErrNoData
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	pending, created, err := s.merge(ctx, []fetchResult{res})
	if err != nil {
		log.Error("search reconciliation failed", "error", err)
		return nil, err
	}
	if err := s.store.SaveAll(ctx, pending); err != nil {
		err = fmt.Errorf("%w: flush: %w", ErrInternal, err)
		log.Error("search reconciliation failed", "error", err)
		return nil, err
	}

	rec = pending[0]
	if created == 1 {
		s.metrics.AddLocations("created", 1)
	} else {
		s.metrics.AddLocations("updated", 1)
	}
	log.Info("search reconciled", "id", rec.ID, "stored_location", rec.Location, "created", created == 1)
	return rec, nil
}

// fetchAll runs fetchOne for every location, at most s.concurrency at a time.
// Results are returned in input order.
func (s *Service) fetchAll(ctx context.Context, locations []string, log *slog.Logger) []fetchResult {
	results := make([]fetchResult, len(locations))

	// A plain Group: one location failing must not cancel the others.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, location := range locations {
		g.Go(func() error {
			results[i] = s.fetchOne(ctx, location, log)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) fetchOne(ctx context.Context, query string, log *slog.Logger) (res fetchResult) {
	res.query = query
	defer func() {
		if r := recover(); r != nil {
			res.obs = nil
			res.err = fmt.Errorf("provider panic: %v", r)
			log.Error("weather fetch panicked", "location", query, "panic", r)
		}
	}()

	obs, err := s.provider.FetchCurrent(ctx, query)
	switch {
	case err != nil:
		res.err = err
		log.Warn("weather fetch failed", "location", query, "provider", s.provider.Name(), "error", err)
	case obs == nil:
		log.Debug("no weather data for location", "location", query, "provider", s.provider.Name())
	default:
		res.obs = obs
	}
	return res
}

// merge resolves each hit against the store and applies the observation.
// Hits that resolve to the same record collapse into one pending entry.
// It returns the pending records and how many of them are new.
func (s *Service) merge(ctx context.Context, hits []fetchResult) ([]*Record, int, error) {
	now := s.now()
	pending := make([]*Record, 0, len(hits))
	byKey := make(map[string]*Record, len(hits))
	created := 0

	for _, h := range hits {
		rec, err := s.resolve(ctx, h.query, h.obs.Location)
		if err != nil {
			return nil, 0, err
		}
		if rec == nil {
			name := strings.TrimSpace(h.obs.Location)
			if name == "" {
				name = h.query
			}
			rec = &Record{Location: name}
		}

		key := recordKey(rec)
		if prev, ok := byKey[key]; ok {
			rec = prev
		} else {
			byKey[key] = rec
			pending = append(pending, rec)
			if rec.ID == 0 {
				created++
			}
		}
		rec.apply(h.obs, now)
	}

	return pending, created, nil
}

// resolve looks a hit up by the query first and then by the provider's
// reported name. It returns nil when neither is stored.
func (s *Service) resolve(ctx context.Context, query, reported string) (*Record, error) {
	for _, name := range []string{query, strings.TrimSpace(reported)} {
		if name == "" {
			continue
		}
		rec, err := s.store.FindByLocation(ctx, name)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: find %q: %w", ErrInternal, name, err)
		}
	}
	return nil, nil
}

func recordKey(rec *Record) string {
	if rec.ID != 0 {
		return "id:" + strconv.FormatUint(uint64(rec.ID), 10)
	}
	return "location:" + rec.Location
}
