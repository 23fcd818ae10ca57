package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/pkg/domain"
)

// Operation is the persistence lifecycle event that produced a record.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ParseOperation validates a stored or transported operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return op, nil
	default:
		return "", fmt.Errorf("unknown audit operation %q", s)
	}
}

// Snapshot is the canonical JSON rendering of an entity at audit time.
// A nil Snapshot means the state is absent.
type Snapshot json.RawMessage

// MarshalJSON emits the snapshot verbatim, or null when absent.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

// UnmarshalJSON keeps the raw bytes; JSON null becomes an absent snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	*s = append((*s)[:0], data...)
	return nil
}

// Record is one audit trail entry. It is created once per lifecycle firing,
// handed to a Sink and never mutated afterwards.
//
// Invariants: CREATE has no PreviousState; DELETE has no NewState. UPDATE has
// no PreviousState unless the caller supplied a pre-image.
type Record struct {
	ID            uuid.UUID        `json:"id"`
	Operation     Operation        `json:"operation"`
	EntityType    string           `json:"entity_type"`
	EntityID      *int64           `json:"entity_id,omitempty"`
	PreviousState Snapshot         `json:"previous_state,omitempty"`
	NewState      Snapshot         `json:"new_state,omitempty"`
	Actor         *domain.Identity `json:"actor,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	RequestID     string           `json:"request_id,omitempty"`
	ClientIP      string           `json:"client_ip,omitempty"`
	Device        string           `json:"device,omitempty"`
}

// Validate checks the operation/state invariants.
func (r Record) Validate() error {
	if r.EntityType == "" {
		return fmt.Errorf("audit record requires EntityType")
	}
	switch r.Operation {
	case OperationCreate:
		if r.PreviousState != nil {
			return fmt.Errorf("CREATE record cannot carry a previous state")
		}
	case OperationDelete:
		if r.NewState != nil {
			return fmt.Errorf("DELETE record cannot carry a new state")
		}
	case OperationUpdate:
	default:
		return fmt.Errorf("unknown audit operation %q", r.Operation)
	}
	return nil
}

// ActorSubject returns the actor's subject or "" for anonymous changes.
func (r Record) ActorSubject() string {
	if r.Actor == nil {
		return ""
	}
	return r.Actor.Subject
}

// EntityKey identifies the audited entity for partitioning (stream keys,
// message keys). Entities without an id share one key per type.
func (r Record) EntityKey() string {
	if r.EntityID == nil {
		return r.EntityType
	}
	return fmt.Sprintf("%s:%d", r.EntityType, *r.EntityID)
}

// Sink receives audit records. Implementations must be safe to call
// synchronously from the goroutine performing the mutation. A returned error
// is contained by the recorder; wrap sentinel.ErrUnavailable to signal that
// the sink cannot accept writes at all.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Store is a Sink whose records can be read back.
type Store interface {
	Sink
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
