// Package metrics exposes Prometheus metrics for the reconciliation engine
// and the upstream weather providers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reconcileRuns      *prometheus.CounterVec
	reconcileLocations *prometheus.CounterVec
	reconcileDuration  *prometheus.HistogramVec
	upstreamDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_reconcile_runs_total",
				Help: "Total number of reconciliation passes",
			},
			[]string{"trigger", "result"}, // result: success, error
		),
		reconcileLocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_reconcile_locations_total",
				Help: "Per-location reconciliation outcomes",
			},
			[]string{"result"}, // result: updated, created, miss, failed
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weather_reconcile_duration_seconds",
				Help:    "Time taken by a reconciliation pass",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"trigger"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weather_upstream_request_duration_seconds",
				Help:    "Time taken by upstream provider requests",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.reconcileRuns,
		m.reconcileLocations,
		m.reconcileDuration,
		m.upstreamDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRun records a finished reconciliation pass.
func (m *Metrics) ObserveRun(trigger string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(trigger, result).Inc()
	m.reconcileDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// AddLocations adds n outcomes of the given kind.
func (m *Metrics) AddLocations(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.reconcileLocations.WithLabelValues(result).Add(float64(n))
}

// ObserveUpstream records one upstream request.
func (m *Metrics) ObserveUpstream(provider, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}
