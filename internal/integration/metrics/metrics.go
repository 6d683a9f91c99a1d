package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "credence_inbound_requests_total",
			Help: "Inbound integration requests by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}
