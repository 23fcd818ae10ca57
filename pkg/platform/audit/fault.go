package audit

import (
	"errors"
	"fmt"

	"warden/pkg/platform/sentinel"
)

// FaultKind enumerates the failures the recorder contains.
type FaultKind int

const (
	FaultDescriptorDerivationFailed FaultKind = iota + 1
	FaultSinkUnavailable
	FaultSinkWriteFailed
)

func (k FaultKind) String() string {
	switch k {
	case FaultDescriptorDerivationFailed:
		return "descriptor_derivation_failed"
	case FaultSinkUnavailable:
		return "sink_unavailable"
	case FaultSinkWriteFailed:
		return "sink_write_failed"
	default:
		return "unknown"
	}
}

// Fault describes a contained audit failure. It is logged and counted, never
// returned to the code performing the mutation.
type Fault struct {
	Kind       FaultKind
	Operation  Operation
	EntityType string
	Err        error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("audit %s for %s %s: %v", f.Kind, f.Operation, f.EntityType, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// ClassifySinkError maps a sink error to SinkUnavailable or SinkWriteFailed.
func ClassifySinkError(err error) FaultKind {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrClosed) {
		return FaultSinkUnavailable
	}
	return FaultSinkWriteFailed
}
