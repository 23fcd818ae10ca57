package domain

import (
	"strings"
	"time"

	dErrors "warden/pkg/domain-errors"
)

// Identity is the authenticated principal behind a request.
// It is derived from a verified access token and lives only for the request.
type Identity struct {
	Subject  string    `json:"subject"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewIdentity validates and returns an Identity.
// The subject must be non-empty after trimming.
func NewIdentity(subject string, issuedAt time.Time) (Identity, error) {
	if strings.TrimSpace(subject) == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity subject cannot be empty")
	}
	return Identity{Subject: subject, IssuedAt: issuedAt}, nil
}

// IsZero reports whether no principal is set.
func (i Identity) IsZero() bool {
	return i.Subject == ""
}

// String returns the subject.
func (i Identity) String() string {
	return i.Subject
}
