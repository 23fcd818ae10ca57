// Package fanout writes each audit record to several sinks.
package fanout

import (
	"context"
	"errors"
	"fmt"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
)

// Named pairs a sink with a label used in error messages.
type Named struct {
	Name string
	Sink audit.Sink
}

// Sink writes to every target in order, continuing past failures. The
// returned error joins every failure; it is classified as unavailable only
// when every target was unavailable.
type Sink struct {
	targets []Named
}

func New(targets ...Named) *Sink {
	kept := make([]Named, 0, len(targets))
	for _, t := range targets {
		if t.Sink != nil {
			kept = append(kept, t)
		}
	}
	return &Sink{targets: kept}
}

func (s *Sink) Len() int { return len(s.targets) }

func (s *Sink) Record(ctx context.Context, rec audit.Record) error {
	var (
		errs        []error
		unavailable int
	)
	for _, t := range s.targets {
		if err := t.Sink.Record(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrClosed) {
				unavailable++
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, stripUnavailable(err)))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if unavailable == len(s.targets) {
		return fmt.Errorf("all audit sinks unavailable: %w: %w", sentinel.ErrUnavailable, joined)
	}
	return joined
}

// stripUnavailable hides the unavailable sentinel of a single target so a
// partial outage classifies as a write failure.
func stripUnavailable(err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrClosed) {
		return errors.New(err.Error())
	}
	return err
}
