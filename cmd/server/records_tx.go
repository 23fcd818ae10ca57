package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/recorder"
	"warden/pkg/platform/tx"
	"warden/pkg/requestcontext"
)

// recordsPostgresTx lets the postgres audit store join a records mutation.
// Records live in memory, so the SQL transaction only scopes audit writes: a
// failed begin runs the mutation without one and a failed commit is a
// contained audit fault. Neither changes the mutation result.
type recordsPostgresTx struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *recorder.Metrics
}

func newRecordsPostgresTx(db *sql.DB, logger *slog.Logger, metrics *recorder.Metrics) *recordsPostgresTx {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &recordsPostgresTx{db: db, logger: logger, metrics: metrics}
}

func (t *recordsPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := tx.RunInTx(ctx, t.db, fn)
	switch {
	case errors.Is(err, tx.ErrBegin):
		t.contain(ctx, audit.FaultSinkUnavailable, "begin", err)
		return fn(ctx)
	case errors.Is(err, tx.ErrCommit):
		t.contain(ctx, audit.FaultSinkWriteFailed, "commit", err)
		return nil
	}
	return err
}

func (t *recordsPostgresTx) contain(ctx context.Context, kind audit.FaultKind, step string, err error) {
	t.metrics.CountFault(kind)
	t.logger.ErrorContext(ctx, "audit transaction fault",
		"step", step,
		"fault", kind.String(),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
