// Package tx carries a SQL transaction through context so stores and audit
// sinks can join the caller's unit of work.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "warden/pkg/domain-errors"
)

const defaultTimeout = 5 * time.Second

// ErrBegin and ErrCommit mark which end of the transaction failed. fn has
// not run when RunInTx returns ErrBegin, and has completed when it returns
// ErrCommit.
var (
	ErrBegin  = errors.New("tx: begin failed")
	ErrCommit = errors.New("tx: commit failed")
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// RunInTx begins a transaction, exposes it to fn through the context and
// commits when fn returns nil. Any error rolls the transaction back.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBegin, err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return nil
}
