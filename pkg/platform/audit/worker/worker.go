package worker

import (
	"context"
	"log/slog"
	"time"

	audit "warden/pkg/platform/audit"
)

// Worker consumes audit records from a channel and writes them to a sink.
// Write failures are logged and the worker moves on.
type Worker struct {
	sink         audit.Sink
	inbox        <-chan audit.Record
	logger       *slog.Logger
	writeTimeout time.Duration
}

type Option func(*Worker)

// WithWriteTimeout bounds each sink write, so a hung sink costs one timeout
// per record instead of stalling the drain.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.writeTimeout = d
	}
}

func NewWorker(sink audit.Sink, inbox <-chan audit.Record, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Worker{sink: sink, inbox: inbox, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes records until the inbox is closed and drained, or ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.write(ctx, rec)
		}
	}
}

func (w *Worker) write(ctx context.Context, rec audit.Record) {
	if w.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.writeTimeout)
		defer cancel()
	}
	if err := w.sink.Record(ctx, rec); err != nil {
		w.logger.ErrorContext(ctx, "async audit write failed",
			"record_id", rec.ID,
			"operation", rec.Operation,
			"entity", rec.EntityKey(),
			"error", err,
		)
	}
}
