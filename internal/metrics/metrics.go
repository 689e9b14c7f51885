// Package metrics holds the prometheus collectors for tripassist.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripassist"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics is a set of collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Submissions counts Submit calls by mode (async, sync) and outcome.
	Submissions *prometheus.CounterVec
	// Callbacks counts webhook deliveries by outcome (completed, engine_error, validation_error).
	Callbacks *prometheus.CounterVec
	// Deliveries counts results handed to clients by channel (poll, stream) and status.
	Deliveries *prometheus.CounterVec
	// ActiveStreams is the number of open stream connections.
	ActiveStreams prometheus.Gauge
	// ExpiredSessions counts sessions dropped by the reaper.
	ExpiredSessions prometheus.Counter
	// EngineDuration observes outbound engine calls.
	EngineDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, with Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Total number of itinerary submissions",
			},
			[]string{"mode", "outcome"},
		),
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Total number of engine callbacks received",
			},
			[]string{"outcome"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of results delivered to clients",
			},
			[]string{"channel", "outcome"},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_streams",
				Help:      "Number of currently open result streams",
			},
		),
		ExpiredSessions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_sessions_total",
				Help:      "Total number of sessions removed after their TTL",
			},
		),
		EngineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_request_duration_seconds",
				Help:      "Duration of workflow engine requests in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
	}

	m.registry.MustRegister(
		m.Submissions,
		m.Callbacks,
		m.Deliveries,
		m.ActiveStreams,
		m.ExpiredSessions,
		m.EngineDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Outcome maps an error to a label value.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
