package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter, by scope",
		}, []string{"scope"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "credence_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}),
	}
}

func (m *Metrics) IncrementRejected(scope string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
