package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry and HTTP-level metrics. Component
// metrics (gate, recorder, sinks) register on Registry.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestDuration *prometheus.HistogramVec
	RecordsMutated  *prometheus.CounterVec
}

// New creates a registry with Go and process collectors and the HTTP metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RecordsMutated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_records_mutated_total",
			Help: "Business record mutations by entity type and operation",
		}, []string{"entity_type", "operation"}),
	}
}

// IncrementMutations counts one mutation.
func (m *Metrics) IncrementMutations(entityType, operation string) {
	if m == nil {
		return
	}
	m.RecordsMutated.WithLabelValues(entityType, operation).Inc()
}

// ObserveRequest records one request latency.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
