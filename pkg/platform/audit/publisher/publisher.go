// Package publisher decouples audit sinks from the mutation path.
//
// In sync mode (the default) Record writes straight through to the sink. In
// async mode records are queued on a bounded buffer drained by a worker; a
// full buffer rejects the record with sentinel.ErrUnavailable instead of
// blocking the caller. Close drains whatever is queued.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/worker"
	"warden/pkg/platform/sentinel"
)

// Publisher implements audit.Sink.
type Publisher struct {
	sink   audit.Sink
	logger *slog.Logger
	now    func() time.Time

	buffer       int
	writeTimeout time.Duration
	mu           sync.RWMutex
	queue        chan audit.Record
	closed       bool
	done         chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a queue of size n. n <= 0 keeps sync mode.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.buffer = n
	}
}

// WithWriteTimeout bounds each queued write so Close cannot hang on a
// stalled sink. It has no effect in sync mode, where the caller's context
// applies.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.writeTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for records without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.queue = make(chan audit.Record, p.buffer)
		p.done = make(chan struct{})
		w := worker.NewWorker(p.sink, p.queue, p.logger, worker.WithWriteTimeout(p.writeTimeout))
		go func() {
			defer close(p.done)
			// Runs until Close closes the queue.
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Async reports whether records are queued.
func (p *Publisher) Async() bool { return p.queue != nil }

// Record stamps rec with an id and timestamp when missing and forwards it.
func (p *Publisher) Record(ctx context.Context, rec audit.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = p.now().UTC()
	}

	if p.queue == nil {
		return p.sink.Record(ctx, rec)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("audit publisher: %w", sentinel.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- rec:
		return nil
	default:
		return fmt.Errorf("audit buffer full: %w", sentinel.ErrUnavailable)
	}
}

// Pending reports queued records not yet written.
func (p *Publisher) Pending() int {
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}

// Close stops accepting records and waits for the queue to drain.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
}
