package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks activity registry throughput.
type Metrics struct {
	ActivitiesCreated *prometheus.CounterVec
	ProofsAttached    prometheus.Counter
}

// New registers the activity metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ActivitiesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_activities_created_total",
			Help: "Total number of activities created, by type and initial status",
		}, []string{"type", "status"}),
		ProofsAttached: f.NewCounter(prometheus.CounterOpts{
			Name: "credence_proofs_attached_total",
			Help: "Total number of proofs attached to activities",
		}),
	}
}

func (m *Metrics) IncrementCreated(activityType, status string) {
	if m == nil {
		return
	}
	m.ActivitiesCreated.WithLabelValues(activityType, status).Inc()
}

func (m *Metrics) IncrementProofsAttached() {
	if m == nil {
		return
	}
	m.ProofsAttached.Inc()
}
