package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/circuit"
	"warden/pkg/platform/sentinel"
)

type flakySink struct {
	calls int
	err   error
}

func (f *flakySink) Record(context.Context, audit.Record) error {
	f.calls++
	return f.err
}

func TestSink_OpensAfterThresholdAndRejectsFast(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	next := &flakySink{err: errors.New("connection refused")}
	metrics := NewMetrics(prometheus.NewRegistry())
	cb := circuit.New("postgres", circuit.WithFailureThreshold(3), circuit.WithCooldown(time.Minute), circuit.WithClock(clock))
	s := New(next, cb, WithMetrics(metrics))
	ctx := context.Background()

	for range 3 {
		err := s.Record(ctx, audit.Record{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	}
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.State.WithLabelValues("postgres")))

	err := s.Record(ctx, audit.Record{})
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, audit.FaultSinkUnavailable, audit.ClassifySinkError(err))
	assert.Equal(t, 3, next.calls, "open breaker must not reach the sink")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Rejected.WithLabelValues("postgres")))

	// Cooldown elapsed and the sink recovered: one probe closes the breaker.
	now = now.Add(time.Minute)
	next.err = nil
	require.NoError(t, s.Record(ctx, audit.Record{}))
	assert.Equal(t, 4, next.calls)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.State.WithLabelValues("postgres")))
}

func TestSink_FailedProbeRestartsCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &flakySink{err: errors.New("timeout")}
	cb := circuit.New("kafka", circuit.WithFailureThreshold(1), circuit.WithCooldown(10*time.Second),
		circuit.WithClock(func() time.Time { return now }))
	s := New(next, cb)
	ctx := context.Background()

	require.Error(t, s.Record(ctx, audit.Record{}))
	require.ErrorIs(t, s.Record(ctx, audit.Record{}), sentinel.ErrUnavailable)

	now = now.Add(10 * time.Second)
	err := s.Record(ctx, audit.Record{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, sentinel.ErrUnavailable)

	now = now.Add(5 * time.Second)
	assert.ErrorIs(t, s.Record(ctx, audit.Record{}), sentinel.ErrUnavailable)
	assert.Equal(t, 2, next.calls)
}

func TestSink_WithoutMetrics(t *testing.T) {
	s := New(&flakySink{}, circuit.New("memory"))
	assert.NoError(t, s.Record(context.Background(), audit.Record{}))
}
