package auth

import "fmt"

// Kind classifies why a request was not authenticated.
type Kind int

const (
	// KindMissing: no bearer credential on a protected path.
	KindMissing Kind = iota + 1
	// KindInvalid: malformed token, bad signature or unacceptable claims.
	KindInvalid
	// KindExpired: correctly signed token whose exp is not in the future.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AuthError is returned by Gate.Authorize. Every kind maps to 401.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthenticated (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("unauthenticated (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// description is the client-facing error_description for each kind.
func (e *AuthError) description() string {
	switch e.Kind {
	case KindMissing:
		return "Missing or invalid Authorization header"
	case KindExpired:
		return "Token has expired"
	default:
		return "Invalid or expired token"
	}
}
