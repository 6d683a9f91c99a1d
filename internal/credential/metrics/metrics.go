package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued  prometheus.Counter
	Revoked prometheus.Counter
	Skipped *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "credence_credentials_issued_total",
			Help: "Credentials signed and persisted",
		}),
		Revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "credence_credentials_revoked_total",
			Help: "Credentials revoked after withdrawal",
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_credential_events_skipped_total",
			Help: "Issuer events that required no change, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementIssued() {
	if m == nil {
		return
	}
	m.Issued.Inc()
}

func (m *Metrics) IncrementRevoked() {
	if m == nil {
		return
	}
	m.Revoked.Inc()
}

func (m *Metrics) IncrementSkipped(reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(reason).Inc()
}
