package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-records/internal/weather"
)

const defaultInterval = time.Hour

// Refresher runs one reconciliation pass over every known location.
type Refresher interface {
	RefreshAll(ctx context.Context) (weather.Summary, error)
}

// Scheduler owns the single recurring refresh job of the process.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a new Scheduler. A non-positive interval falls back to one
// hour; a non-positive timeout means ticks are only bounded by Stop.
func New(interval, timeout time.Duration, refresher Refresher, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the refresh job, runs it immediately and then once per
// interval. Overlapping ticks are skipped rather than queued.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	_, err := s.scheduler.Every(s.interval).
		StartImmediately().
		SingletonMode().
		Do(s.run)
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule refresh job: %w", err)
	}

	s.scheduler.StartAsync()
	s.started = true
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop cancels any in-flight tick and stops future ones. It is safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// run is one tick. It never panics out, so the job stays scheduled.
func (s *Scheduler) run() {
	ctx := weather.WithTrigger(s.ctx, weather.TriggerSchedule)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled refresh panicked", "panic", r)
		}
	}()

	s.logger.Info("running scheduled weather refresh")
	sum, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("scheduled weather refresh failed", "error", err)
		return
	}
	s.logger.Info("completed scheduled weather refresh",
		"run_id", sum.RunID,
		"locations", sum.Locations,
		"updated", sum.Updated,
		"created", sum.Created,
	)
}
