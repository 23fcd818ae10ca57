package memory

import (
	"context"
	"slices"
	"sync"

	audit "warden/pkg/platform/audit"
)

// InMemoryStore keeps audit records in insertion order. Intended for tests
// and single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  []audit.Record
	byEntity map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[string][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byEntity = make(map[string][]int)
}

func (s *InMemoryStore) Record(ctx context.Context, rec audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if rec.EntityID != nil {
		key := rec.EntityKey()
		s.byEntity[key] = append(s.byEntity[key], len(s.records)-1)
	}
	return nil
}

// ListByEntity returns the trail of one entity, oldest first.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityType string, entityID int64) ([]audit.Record, error) {
	key := audit.Record{EntityType: entityType, EntityID: &entityID}.EntityKey()

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byEntity[key]
	out := make([]audit.Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.records[i])
	}
	return out, nil
}

// ListRecent returns up to limit records, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := slices.Clone(s.records[n-limit:])
	slices.Reverse(out)
	return out, nil
}

// Len reports how many records are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ audit.Store = (*InMemoryStore)(nil)
