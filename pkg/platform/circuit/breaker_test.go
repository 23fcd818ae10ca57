package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	b := New("audit-postgres")
	assert.Equal(t, "audit-postgres", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "default threshold is five failures")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

// calls is the sequence fed to the breaker: f is a failure, s a success.
func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		calls     string
		open      bool
		opened    int
		closed    int
	}{
		{name: "below threshold stays closed", failures: 3, successes: 1, calls: "ff", open: false},
		{name: "threshold opens once", failures: 3, successes: 1, calls: "ffff", open: true, opened: 1},
		{name: "success clears the failure streak", failures: 3, successes: 1, calls: "ffsff", open: false},
		{name: "streak after reset opens", failures: 3, successes: 1, calls: "ffsfff", open: true, opened: 1},
		{name: "probe successes close", failures: 1, successes: 2, calls: "fss", open: false, opened: 1, closed: 1},
		{name: "one probe success is not enough", failures: 1, successes: 2, calls: "fs", open: true, opened: 1},
		{name: "failure while open resets probe count", failures: 1, successes: 3, calls: "fssfss", open: true, opened: 1},
		{name: "full probe run after reset closes", failures: 1, successes: 3, calls: "fssfsss", open: false, opened: 1, closed: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("sink", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))

			var opened, closed int
			for _, c := range tt.calls {
				var change StateChange
				switch c {
				case 'f':
					_, change = b.RecordFailure()
				case 's':
					_, change = b.RecordSuccess()
				default:
					t.Fatalf("unknown call %q", c)
				}
				if change.Opened {
					opened++
				}
				if change.Closed {
					closed++
				}
			}

			assert.Equal(t, tt.open, b.IsOpen())
			assert.Equal(t, tt.opened, opened)
			assert.Equal(t, tt.closed, closed)
		})
	}
}

func TestBreaker_ReportsFallbackWhileOpen(t *testing.T) {
	b := New("sink", WithFailureThreshold(2))

	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback)
	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, _ := b.RecordSuccess()
	assert.True(t, usePrimary, "single success threshold closes on the first probe")
}

func TestBreaker_Reset(t *testing.T) {
	b := New("sink", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_AllowHonoursCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("sink", WithFailureThreshold(2), WithCooldown(time.Minute), WithClock(func() time.Time { return now }))

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "probe allowed once cooldown elapsed")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts the cooldown")

	now = now.Add(time.Minute)
	require.True(t, b.Allow())
	_, change := b.RecordSuccess()
	assert.True(t, change.Closed)
	assert.Equal(t, "closed", b.State().String())
}
