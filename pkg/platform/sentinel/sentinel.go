package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, sinks and the record engine
// return these (optionally wrapped) so callers can branch with errors.Is:
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: entity with the same identity already exists
//   - ErrExpired: credential validity window has passed
//   - ErrUnavailable: backend temporarily unavailable (breaker open, buffer full)
//   - ErrClosed: component already shut down
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
