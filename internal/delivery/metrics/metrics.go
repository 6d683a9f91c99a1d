package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks consumer delivery outcomes.
type Metrics struct {
	Deliveries   *prometheus.CounterVec
	Duplicates   *prometheus.CounterVec
	DeadLettered *prometheus.CounterVec
	Replays      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_delivery_attempts_total",
			Help: "Handler invocations by consumer and outcome",
		}, []string{"consumer", "outcome"}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_delivery_duplicates_total",
			Help: "Envelopes skipped because their idempotency key was already processed",
		}, []string{"consumer"}),
		DeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_dead_letters_total",
			Help: "Envelopes moved to the dead-letter queue",
		}, []string{"consumer"}),
		Replays: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_dead_letter_replays_total",
			Help: "Operator replays by consumer and outcome",
		}, []string{"consumer", "outcome"}),
	}
}

func (m *Metrics) IncrementDelivery(consumer, outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(consumer, outcome).Inc()
}

func (m *Metrics) IncrementDuplicate(consumer string) {
	if m == nil {
		return
	}
	m.Duplicates.WithLabelValues(consumer).Inc()
}

func (m *Metrics) IncrementDeadLettered(consumer string) {
	if m == nil {
		return
	}
	m.DeadLettered.WithLabelValues(consumer).Inc()
}

func (m *Metrics) IncrementReplay(consumer, outcome string) {
	if m == nil {
		return
	}
	m.Replays.WithLabelValues(consumer, outcome).Inc()
}
