//go:build integration

package redisstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/testutil/containers"
)

func TestSink_AgainstRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	s := New(rc.Client, WithStream("warden:audit:it"), WithMaxLen(10))
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Record(ctx, sample(i)))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	records, err := s.Read(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Reservation:1", records[0].EntityKey())
	assert.Equal(t, "alice", records[2].ActorSubject())
}
