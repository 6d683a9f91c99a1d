package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sent      *prometheus.CounterVec
	Fallbacks prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_notifications_sent_total",
			Help: "Notifications handed to a channel, by channel",
		}, []string{"channel"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "credence_notification_fallbacks_total",
			Help: "Notifications routed to the fallback channel because the primary failed or its breaker was open",
		}),
	}
}

func (m *Metrics) IncrementSent(channel string) {
	if m == nil {
		return
	}
	m.Sent.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}
