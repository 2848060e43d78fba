package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-records/internal/weather"
)

type refresherFunc func(ctx context.Context) (weather.Summary, error)

func (f refresherFunc) RefreshAll(ctx context.Context) (weather.Summary, error) {
	return f(ctx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediately(t *testing.T) {
	var calls atomic.Int32
	s := New(time.Hour, time.Minute, refresherFunc(func(context.Context) (weather.Summary, error) {
		calls.Add(1)
		return weather.Summary{RunID: "run"}, nil
	}), quietLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := New(time.Hour, 0, refresherFunc(func(context.Context) (weather.Summary, error) {
		return weather.Summary{}, nil
	}), quietLogger())

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Error(t, s.Start())
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(time.Hour, 0, refresherFunc(func(context.Context) (weather.Summary, error) {
		return weather.Summary{}, nil
	}), quietLogger())

	s.Stop()
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestScheduler_PanicIsContained(t *testing.T) {
	var calls atomic.Int32
	s := New(time.Hour, 0, refresherFunc(func(context.Context) (weather.Summary, error) {
		calls.Add(1)
		panic("refresh exploded")
	}), quietLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_TickHonoursTimeout(t *testing.T) {
	var (
		mu      sync.Mutex
		tickErr error
	)
	s := New(time.Hour, 20*time.Millisecond, refresherFunc(func(ctx context.Context) (weather.Summary, error) {
		<-ctx.Done()
		mu.Lock()
		tickErr = ctx.Err()
		mu.Unlock()
		return weather.Summary{}, ctx.Err()
	}), quietLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return tickErr == context.DeadlineExceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsInFlightTick(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	s := New(time.Hour, 0, refresherFunc(func(ctx context.Context) (weather.Summary, error) {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return weather.Summary{}, ctx.Err()
	}), quietLogger())

	require.NoError(t, s.Start())

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh job did not start")
	}
	s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight refresh was not cancelled")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(0, 0, refresherFunc(func(context.Context) (weather.Summary, error) {
		return weather.Summary{}, nil
	}), nil)
	assert.Equal(t, time.Hour, s.interval)
}
