// Package store is an in-memory persistence engine for business records. It
// fires lifecycle hooks before every create, update and delete, the way an
// ORM fires entity listeners.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"warden/internal/records/models"
	"warden/pkg/platform/lifecycle"
	"warden/pkg/platform/sentinel"
)

// Row is a pointer to a storable record.
type Row[T any] interface {
	*T
	Key() int64
	SetKey(id int64)
}

// Table stores one record type keyed by a generated int64.
//
// Hooks run under the table lock, after the key is assigned and before the
// change is applied, so a listener observes the final identity of a new row.
// Listeners must not call back into the table. A slow listener also delays
// readers of the same table, since Get and List take the read lock.
type Table[T any, P Row[T]] struct {
	hooks *lifecycle.Hooks

	mu   sync.RWMutex
	rows map[int64]T
	next int64
}

func NewTable[T any, P Row[T]](hooks *lifecycle.Hooks) *Table[T, P] {
	if hooks == nil {
		hooks = &lifecycle.Hooks{}
	}
	return &Table[T, P]{hooks: hooks, rows: make(map[int64]T)}
}

// Insert assigns a key to row and stores a copy.
func (t *Table[T, P]) Insert(ctx context.Context, row P) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	row.SetKey(t.next)
	t.hooks.BeforeCreate(ctx, row)
	t.rows[row.Key()] = *row
	return nil
}

// Update replaces the stored row with the same key.
func (t *Table[T, P]) Update(ctx context.Context, row P) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[row.Key()]; !ok {
		return fmt.Errorf("row %d: %w", row.Key(), sentinel.ErrNotFound)
	}
	t.hooks.BeforeUpdate(ctx, row)
	t.rows[row.Key()] = *row
	return nil
}

// Delete removes the row with key id and returns its last state.
func (t *Table[T, P]) Delete(ctx context.Context, id int64) (P, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("row %d: %w", id, sentinel.ErrNotFound)
	}
	row := P(&existing)
	t.hooks.BeforeDelete(ctx, row)
	delete(t.rows, id)
	return row, nil
}

// Get returns a copy of the row with key id.
func (t *Table[T, P]) Get(_ context.Context, id int64) (P, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	existing, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("row %d: %w", id, sentinel.ErrNotFound)
	}
	return P(&existing), nil
}

// List returns copies of all rows ordered by key.
func (t *Table[T, P]) List(_ context.Context) []P {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]int64, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]P, 0, len(keys))
	for _, k := range keys {
		v := t.rows[k]
		out = append(out, P(&v))
	}
	return out
}

// Engine groups the tables of the sample domain around one hook registry.
type Engine struct {
	Reservations *Table[models.Reservation, *models.Reservation]
	Invoices     *Table[models.Invoice, *models.Invoice]
	Notes        *Table[models.Note, *models.Note]
}

func NewEngine(hooks *lifecycle.Hooks) *Engine {
	return &Engine{
		Reservations: NewTable[models.Reservation, *models.Reservation](hooks),
		Invoices:     NewTable[models.Invoice, *models.Invoice](hooks),
		Notes:        NewTable[models.Note, *models.Note](hooks),
	}
}
