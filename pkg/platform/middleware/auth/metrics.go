package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for warden_auth_decisions_total.
const (
	outcomeExempt        = "exempt"
	outcomeAuthenticated = "authenticated"
)

// Metrics holds Prometheus metrics for gate decisions.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

// NewMetrics registers gate metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_decisions_total",
			Help: "Authentication gate decisions by outcome (exempt, authenticated, missing, invalid, expired)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}
