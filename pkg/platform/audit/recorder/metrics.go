package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "warden/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for the mutation audit recorder.
type Metrics struct {
	RecordsEmitted *prometheus.CounterVec
	Faults         *prometheus.CounterVec
	SinkLatency    prometheus.Histogram
}

// NewMetrics registers recorder metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_audit_records_emitted_total",
			Help: "Audit records accepted by the sink, by operation",
		}, []string{"operation"}),
		Faults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_audit_faults_total",
			Help: "Contained audit failures, by fault kind",
		}, []string{"kind"}),
		SinkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_audit_sink_write_duration_seconds",
			Help:    "Time spent in synchronous audit sink writes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incEmitted(op audit.Operation) {
	if m == nil {
		return
	}
	m.RecordsEmitted.WithLabelValues(string(op)).Inc()
}

// CountFault records a contained fault raised outside the recorder, such as a
// failed commit of the transaction an audit write joined.
func (m *Metrics) CountFault(kind audit.FaultKind) {
	m.incFault(kind)
}

func (m *Metrics) incFault(kind audit.FaultKind) {
	if m == nil {
		return
	}
	m.Faults.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeLatency(seconds float64) {
	if m == nil {
		return
	}
	m.SinkLatency.Observe(seconds)
}
