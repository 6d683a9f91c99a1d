package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification engine.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	BulkItems          *prometheus.CounterVec
}

// New registers the engine metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_transitions_total",
			Help: "Transition attempts by action and outcome (ok or error code)",
		}, []string{"action", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credence_transition_duration_seconds",
			Help:    "Duration of Apply including lock wait, proof checks and commit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"action"}),
		BulkItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_bulk_transition_items_total",
			Help: "Bulk transition items by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveTransition records one Apply call. Call with time.Now() at the start.
func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementBulkItem(outcome string) {
	if m == nil {
		return
	}
	m.BulkItems.WithLabelValues(outcome).Inc()
}
