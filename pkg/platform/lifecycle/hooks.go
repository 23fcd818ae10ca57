// Package lifecycle defines the pre-commit hook contract between a
// persistence engine and the components observing its mutations.
package lifecycle

import (
	"context"
	"sync"
)

// Listener observes entity mutations before they are committed.
// Implementations must return normally; they cannot veto the mutation.
type Listener interface {
	OnBeforeCreate(ctx context.Context, entity any)
	OnBeforeUpdate(ctx context.Context, entity any)
	OnBeforeDelete(ctx context.Context, entity any)
}

// Hooks fans each firing out to registered listeners in registration order.
// The zero value is ready to use.
type Hooks struct {
	mu        sync.RWMutex
	listeners []Listener
}

// Register adds a listener. Nil listeners are ignored.
func (h *Hooks) Register(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *Hooks) BeforeCreate(ctx context.Context, entity any) {
	for _, l := range h.snapshot() {
		l.OnBeforeCreate(ctx, entity)
	}
}

func (h *Hooks) BeforeUpdate(ctx context.Context, entity any) {
	for _, l := range h.snapshot() {
		l.OnBeforeUpdate(ctx, entity)
	}
}

func (h *Hooks) BeforeDelete(ctx context.Context, entity any) {
	for _, l := range h.snapshot() {
		l.OnBeforeDelete(ctx, entity)
	}
}

// Len returns the number of registered listeners.
func (h *Hooks) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hooks) snapshot() []Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Listener(nil), h.listeners...)
}
