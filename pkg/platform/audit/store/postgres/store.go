package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"warden/pkg/domain"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	txcontext "warden/pkg/platform/tx"
)

const savepoint = "warden_audit"

// Schema is the DDL for the audit trail table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id             UUID PRIMARY KEY,
	operation      TEXT        NOT NULL,
	entity_type    TEXT        NOT NULL,
	entity_id      BIGINT,
	previous_state JSONB,
	new_state      JSONB,
	actor_subject  TEXT,
	recorded_at    TIMESTAMPTZ NOT NULL,
	request_id     TEXT        NOT NULL DEFAULT '',
	client_ip      TEXT        NOT NULL DEFAULT '',
	device         TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_records_entity_idx ON audit_records (entity_type, entity_id, recorded_at);
CREATE INDEX IF NOT EXISTS audit_records_recorded_at_idx ON audit_records (recorded_at DESC);
`

const insertRecord = `
	INSERT INTO audit_records (
		id, operation, entity_type, entity_id, previous_state, new_state,
		actor_subject, recorded_at, request_id, client_ip, device
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const selectColumns = `
	SELECT id, operation, entity_type, entity_id, previous_state, new_state,
		   actor_subject, recorded_at, request_id, client_ip, device
	FROM audit_records
`

// Store implements audit.Store on PostgreSQL.
//
// When the context carries a transaction (see pkg/platform/tx) the insert
// joins it under a savepoint, so a failed audit write never aborts the
// surrounding mutation.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", classify(err))
	}
	return nil
}

// Record writes rec, inside the caller's transaction when one is present.
func (s *Store) Record(ctx context.Context, rec audit.Record) error {
	tx, ok := txcontext.From(ctx)
	if !ok {
		if err := s.insert(ctx, s.db, insertRecord, rec); err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("audit savepoint: %w", classify(err))
	}
	if err := s.insert(ctx, tx, insertRecord, rec); err != nil {
		// The caller's transaction must stay usable even if ctx was cancelled.
		if _, rbErr := tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return errors.Join(fmt.Errorf("insert audit record: %w", err), fmt.Errorf("rollback audit savepoint: %w", rbErr))
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("release audit savepoint: %w", classify(err))
	}
	return nil
}

// AppendWithID inserts a record that already has an id, ignoring duplicates.
// Used when materializing records replayed from the event stream.
func (s *Store) AppendWithID(ctx context.Context, rec audit.Record) error {
	if rec.ID == uuid.Nil {
		return fmt.Errorf("audit record requires an id")
	}
	if err := s.insert(ctx, s.db, insertRecord+" ON CONFLICT (id) DO NOTHING", rec); err != nil {
		return fmt.Errorf("materialize audit record: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, query string, rec audit.Record) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var actor sql.NullString
	if subject := rec.ActorSubject(); subject != "" {
		actor = sql.NullString{String: subject, Valid: true}
	}
	_, err := ex.ExecContext(ctx, query,
		id,
		string(rec.Operation),
		rec.EntityType,
		nullableID(rec.EntityID),
		nullableJSON(rec.PreviousState),
		nullableJSON(rec.NewState),
		actor,
		rec.Timestamp,
		rec.RequestID,
		rec.ClientIP,
		rec.Device,
	)
	return classify(err)
}

// ListByEntity returns the trail of one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE entity_type = $1 AND entity_id = $2 ORDER BY recorded_at ASC`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", classify(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecent returns the N most recent records. limit <= 0 returns all.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY recorded_at DESC LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", classify(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecentByType returns the N most recent records for the given entity types.
func (s *Store) ListRecentByType(ctx context.Context, entityTypes []string, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE entity_type = ANY($1) ORDER BY recorded_at DESC LIMIT $2`,
		pq.Array(entityTypes), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", classify(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

// limitArg maps a non-positive limit to LIMIT NULL, which Postgres treats as
// no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			rec       audit.Record
			operation string
			entityID  sql.NullInt64
			previous  []byte
			next      []byte
			actor     sql.NullString
		)

		err := rows.Scan(
			&rec.ID,
			&operation,
			&rec.EntityType,
			&entityID,
			&previous,
			&next,
			&actor,
			&rec.Timestamp,
			&rec.RequestID,
			&rec.ClientIP,
			&rec.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		op, err := audit.ParseOperation(operation)
		if err != nil {
			return nil, err
		}
		rec.Operation = op
		if entityID.Valid {
			v := entityID.Int64
			rec.EntityID = &v
		}
		if previous != nil {
			rec.PreviousState = audit.Snapshot(previous)
		}
		if next != nil {
			rec.NewState = audit.Snapshot(next)
		}
		if actor.Valid {
			rec.Actor = &domain.Identity{Subject: actor.String}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullableJSON(s audit.Snapshot) any {
	if s == nil {
		return nil
	}
	return []byte(s)
}

// classify marks connection-level failures as sentinel.ErrUnavailable so the
// recorder reports them as an unavailable sink rather than a failed write.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isConnectionClass(pgErr.Code) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && isConnectionClass(string(pqErr.Code)) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

// SQLSTATE class 08 is connection exceptions; 57P0x is operator intervention
// (admin shutdown, crash shutdown, cannot connect now).
func isConnectionClass(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P0")
}

var _ audit.Store = (*Store)(nil)
