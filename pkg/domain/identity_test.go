package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

func TestNewIdentity(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("rejects empty subject", func(t *testing.T) {
		_, err := NewIdentity("", issuedAt)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects whitespace subject", func(t *testing.T) {
		_, err := NewIdentity("   ", issuedAt)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts subject", func(t *testing.T) {
		identity, err := NewIdentity("alice", issuedAt)
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.Subject)
		assert.Equal(t, issuedAt, identity.IssuedAt)
		assert.False(t, identity.IsZero())
		assert.Equal(t, "alice", identity.String())
	})

	t.Run("zero value has no principal", func(t *testing.T) {
		assert.True(t, Identity{}.IsZero())
	})
}
