package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for a campaign run.
type Metrics struct {
	ActionsTotal        *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	RateLimitWaitsTotal *prometheus.CounterVec
	WaitSecondsTotal    prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_actions_total",
				Help: "Total number of recorded action outcomes",
			},
			[]string{"campaign", "outcome"},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_retries_total",
				Help: "Total number of transient failures re-enqueued for retry",
			},
		),
		RateLimitWaitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_rate_limit_waits_total",
				Help: "Total number of waits forced by an exhausted rate window",
			},
			[]string{"window"},
		),
		WaitSecondsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_wait_seconds_total",
				Help: "Total seconds spent suspended on rate windows and inter-action delays",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.ActionsTotal,
		m.RetriesTotal,
		m.RateLimitWaitsTotal,
		m.WaitSecondsTotal,
	)

	return m
}

// Registry returns the private registry for serving.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
