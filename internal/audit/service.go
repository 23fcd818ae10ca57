// Package audit serves read access to the persisted audit trail.
package audit

import (
	"context"

	dErrors "warden/pkg/domain-errors"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// TypeLister is implemented by stores that can filter recent records by
// entity type server side.
type TypeLister interface {
	ListRecentByType(ctx context.Context, entityTypes []string, limit int) ([]audit.Record, error)
}

// Query selects records from the trail. EntityID requires EntityTypes to
// name exactly one type.
type Query struct {
	EntityTypes []string
	EntityID    *int64
	Limit       int
}

type Service struct {
	store audit.Store
}

func NewService(store audit.Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context, q Query) ([]audit.Record, error) {
	q.EntityTypes = strings.DedupeAndTrim(q.EntityTypes)
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}

	if q.EntityID != nil {
		if len(q.EntityTypes) != 1 {
			return nil, dErrors.New(dErrors.CodeValidation, "entity_id requires exactly one entity_type")
		}
		records, err := s.store.ListByEntity(ctx, q.EntityTypes[0], *q.EntityID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
		}
		if len(records) > q.Limit {
			records = records[len(records)-q.Limit:]
		}
		return records, nil
	}

	if len(q.EntityTypes) > 0 {
		return s.listByType(ctx, q)
	}

	records, err := s.store.ListRecent(ctx, q.Limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
	}
	return records, nil
}

func (s *Service) listByType(ctx context.Context, q Query) ([]audit.Record, error) {
	if lister, ok := s.store.(TypeLister); ok {
		records, err := lister.ListRecentByType(ctx, q.EntityTypes, q.Limit)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
		}
		return records, nil
	}

	all, err := s.store.ListRecent(ctx, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
	}
	wanted := make(map[string]struct{}, len(q.EntityTypes))
	for _, t := range q.EntityTypes {
		wanted[t] = struct{}{}
	}
	out := make([]audit.Record, 0, q.Limit)
	for _, rec := range all {
		if _, ok := wanted[rec.EntityType]; !ok {
			continue
		}
		out = append(out, rec)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
