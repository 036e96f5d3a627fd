// Package metrics provides Prometheus instrumentation for recurd components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for Resolutions.
const (
	OutcomeScheduled = "scheduled"
	OutcomeFinished  = "finished"
	OutcomeError     = "error"
)

// Result labels for DispatchEvents.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// Registry holds all metric instances for recurd components.
type Registry struct {
	// Engine
	Resolutions     *prometheus.CounterVec
	ResolveDuration prometheus.Histogram

	// Scheduler
	DueEvents        prometheus.Counter
	TrackedSchedules prometheus.Gauge

	// Dispatch
	DispatchEvents *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
}

// NewRegistry creates the metric set and registers it with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recurd",
				Subsystem: "engine",
				Name:      "resolutions_total",
				Help:      "Next-occurrence resolutions by outcome",
			},
			[]string{"outcome"},
		),

		ResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "recurd",
				Subsystem: "engine",
				Name:      "resolve_duration_seconds",
				Help:      "Time spent resolving the next occurrence of a schedule",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
		),

		DueEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recurd",
				Subsystem: "scheduler",
				Name:      "due_events_total",
				Help:      "Due events emitted by the scheduler loop",
			},
		),

		TrackedSchedules: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recurd",
				Subsystem: "scheduler",
				Name:      "tracked_schedules",
				Help:      "Number of schedules held in the store",
			},
		),

		DispatchEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recurd",
				Subsystem: "dispatch",
				Name:      "events_total",
				Help:      "Due events handed to a publisher, by result",
			},
			[]string{"result"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "recurd",
				Subsystem: "dispatch",
				Name:      "queue_depth",
				Help:      "Due events waiting for delivery",
			},
		),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
