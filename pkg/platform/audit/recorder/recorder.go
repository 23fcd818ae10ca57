// Package recorder turns persistence lifecycle firings into audit records.
//
// The Recorder implements lifecycle.Listener. For every firing it derives a
// type-erased descriptor of the entity, builds one audit.Record and forwards
// it synchronously to the bound sink. Every failure along the way is an
// audit.Fault: logged, counted and discarded. The mutation always proceeds.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"warden/pkg/domain"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/lifecycle"
	"warden/pkg/requestcontext"
)

const tracerName = "warden/audit/recorder"

// ActorResolver returns the principal responsible for the mutation, if any.
type ActorResolver func(ctx context.Context) (domain.Identity, bool)

// Recorder is safe for concurrent use; it keeps no per-record state.
type Recorder struct {
	sink        *SinkRef
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	actor       ActorResolver
	sinkTimeout time.Duration
}

var _ lifecycle.Listener = (*Recorder)(nil)

// Option configures the Recorder.
type Option func(*Recorder)

// WithSink binds sink at construction.
func WithSink(sink audit.Sink) Option {
	return func(r *Recorder) {
		r.sink = NewSinkRef(sink)
	}
}

// WithSinkRef shares a late-bound sink reference owned by the caller.
func WithSinkRef(ref *SinkRef) Option {
	return func(r *Recorder) {
		if ref != nil {
			r.sink = ref
		}
	}
}

// WithLogger sets a logger for contained faults.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithTracer overrides the tracer used around sink writes.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// WithActorResolver overrides how the acting principal is found.
// Defaults to the identity the auth gate attached to the context.
func WithActorResolver(resolve ActorResolver) Option {
	return func(r *Recorder) {
		r.actor = resolve
	}
}

// WithSinkTimeout bounds each synchronous sink write.
func WithSinkTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.sinkTimeout = d
	}
}

// New creates a Recorder. Without WithSink or WithSinkRef it starts unbound
// and every firing is a no-op until Sink().Bind is called.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		sink:   &SinkRef{},
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
		actor:  requestcontext.Identity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sink exposes the late-bound sink reference.
func (r *Recorder) Sink() *SinkRef {
	return r.sink
}

// OnBeforeCreate records a CREATE with the entity as new state.
func (r *Recorder) OnBeforeCreate(ctx context.Context, entity any) {
	r.record(ctx, audit.OperationCreate, entity)
}

// OnBeforeUpdate records an UPDATE with the entity as new state. The previous
// state is only present when supplied through WithPreviousState.
func (r *Recorder) OnBeforeUpdate(ctx context.Context, entity any) {
	r.record(ctx, audit.OperationUpdate, entity)
}

// OnBeforeDelete records a DELETE with the entity as previous state.
func (r *Recorder) OnBeforeDelete(ctx context.Context, entity any) {
	r.record(ctx, audit.OperationDelete, entity)
}

func (r *Recorder) record(ctx context.Context, op audit.Operation, entity any) {
	sink, ok := r.sink.Load()
	if !ok {
		return
	}

	rec, ok := r.build(ctx, op, entity)
	if !ok {
		return
	}
	r.forward(ctx, sink, rec)
}

// build derives the descriptor and assembles the record. It reports false
// only when the entity type cannot be determined.
func (r *Recorder) build(ctx context.Context, op audit.Operation, entity any) (audit.Record, bool) {
	d, err := audit.Describe(entity)
	if d.EntityType == "" {
		r.fault(ctx, &audit.Fault{Kind: audit.FaultDescriptorDerivationFailed, Operation: op, Err: err})
		return audit.Record{}, false
	}
	if err != nil {
		r.fault(ctx, &audit.Fault{Kind: audit.FaultDescriptorDerivationFailed, Operation: op, EntityType: d.EntityType, Err: err})
	}

	rec := audit.Record{
		ID:         uuid.New(),
		Operation:  op,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Timestamp:  requestcontext.Now(ctx).UTC(),
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		Device:     requestcontext.Device(ctx),
	}
	switch op {
	case audit.OperationCreate:
		rec.NewState = d.Snapshot
	case audit.OperationUpdate:
		rec.NewState = d.Snapshot
		rec.PreviousState = r.preImage(ctx, d.EntityType)
	case audit.OperationDelete:
		rec.PreviousState = d.Snapshot
	}

	if actor, ok := r.actor(ctx); ok {
		rec.Actor = &actor
	}
	return rec, true
}

func (r *Recorder) preImage(ctx context.Context, entityType string) audit.Snapshot {
	prev, ok := previousState(ctx)
	if !ok {
		return nil
	}
	prevType, err := audit.EntityType(prev)
	if err != nil || prevType != entityType {
		r.logger.DebugContext(ctx, "ignoring pre-image of a different entity type",
			"entity_type", entityType,
			"pre_image_type", prevType,
		)
		return nil
	}
	return r.snapshot(ctx, audit.OperationUpdate, entityType, prev)
}

func (r *Recorder) forward(ctx context.Context, sink audit.Sink, rec audit.Record) {
	ctx, span := r.tracer.Start(ctx, "audit.record", trace.WithAttributes(
		attribute.String("audit.operation", string(rec.Operation)),
		attribute.String("audit.entity_type", rec.EntityType),
	))
	defer span.End()

	if r.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.sinkTimeout)
		defer cancel()
	}

	start := time.Now()
	err := sink.Record(ctx, rec)
	r.metrics.observeLatency(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit sink write failed")
		r.fault(ctx, &audit.Fault{
			Kind:       audit.ClassifySinkError(err),
			Operation:  rec.Operation,
			EntityType: rec.EntityType,
			Err:        err,
		})
		return
	}
	r.metrics.incEmitted(rec.Operation)
}

func (r *Recorder) fault(ctx context.Context, f *audit.Fault) {
	r.metrics.incFault(f.Kind)

	attrs := []any{
		"operation", f.Operation,
		"entity_type", f.EntityType,
		"fault", f.Kind.String(),
		"error", f.Err,
		"request_id", requestcontext.RequestID(ctx),
	}
	if f.Kind == audit.FaultDescriptorDerivationFailed {
		r.logger.WarnContext(ctx, "audit descriptor derivation failed", attrs...)
		return
	}
	if errors.Is(f.Err, context.DeadlineExceeded) {
		attrs = append(attrs, "timeout", r.sinkTimeout)
	}
	r.logger.ErrorContext(ctx, "audit record not persisted", attrs...)
}
