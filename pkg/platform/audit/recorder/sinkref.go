package recorder

import (
	"sync/atomic"

	audit "warden/pkg/platform/audit"
)

// SinkRef is a late-bound, optional reference to the audit sink. The recorder
// resolves it on every firing, so the sink can be bound after the recorder is
// registered with the persistence engine, swapped, or removed.
type SinkRef struct {
	v atomic.Pointer[sinkHolder]
}

type sinkHolder struct {
	sink audit.Sink
}

// NewSinkRef returns a reference bound to sink (nil leaves it unbound).
func NewSinkRef(sink audit.Sink) *SinkRef {
	ref := &SinkRef{}
	ref.Bind(sink)
	return ref
}

// Bind sets the sink. Binding nil unbinds.
func (r *SinkRef) Bind(sink audit.Sink) {
	if sink == nil {
		r.v.Store(nil)
		return
	}
	r.v.Store(&sinkHolder{sink: sink})
}

// Unbind removes the sink; subsequent firings are silent no-ops.
func (r *SinkRef) Unbind() {
	r.v.Store(nil)
}

// Load returns the bound sink, if any.
func (r *SinkRef) Load() (audit.Sink, bool) {
	if r == nil {
		return nil, false
	}
	h := r.v.Load()
	if h == nil {
		return nil, false
	}
	return h.sink, true
}
