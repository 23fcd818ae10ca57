// Package breaker guards an audit sink with a circuit breaker. After repeated
// write failures the sink is skipped for a cooldown and every record is
// rejected immediately with sentinel.ErrUnavailable.
package breaker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/circuit"
	"warden/pkg/platform/sentinel"
)

// Metrics holds Prometheus metrics for a guarded sink.
type Metrics struct {
	State    *prometheus.GaugeVec
	Rejected *prometheus.CounterVec
}

// NewMetrics registers breaker metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_audit_sink_breaker_state",
			Help: "Current audit sink breaker state (0=closed/healthy, 1=open/unhealthy)",
		}, []string{"sink"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_audit_sink_breaker_rejected_total",
			Help: "Audit records rejected without a write attempt because the breaker was open",
		}, []string{"sink"}),
	}
}

// Sink wraps another sink with a circuit breaker.
type Sink struct {
	next    audit.Sink
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Sink.
type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// New wraps next with cb.
func New(next audit.Sink, cb *circuit.Breaker, opts ...Option) *Sink {
	s := &Sink{
		next:    next,
		breaker: cb,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setState(circuit.StateClosed)
	return s
}

// Record forwards rec unless the breaker is open.
func (s *Sink) Record(ctx context.Context, rec audit.Record) error {
	if !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.Rejected.WithLabelValues(s.breaker.Name()).Inc()
		}
		return fmt.Errorf("audit sink %s: circuit open: %w", s.breaker.Name(), sentinel.ErrUnavailable)
	}

	if err := s.next.Record(ctx, rec); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "audit sink circuit opened", "sink", s.breaker.Name(), "error", err)
			s.setState(circuit.StateOpen)
		}
		return err
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit sink circuit closed", "sink", s.breaker.Name())
		s.setState(circuit.StateClosed)
	}
	return nil
}

func (s *Sink) setState(state circuit.State) {
	if s.metrics == nil {
		return
	}
	v := 0.0
	if state == circuit.StateOpen {
		v = 1
	}
	s.metrics.State.WithLabelValues(s.breaker.Name()).Set(v)
}
