package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/store/memory"
)

func TestWorker_DrainsUntilInboxClosed(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Record, 3)
	for range 3 {
		inbox <- audit.Record{Operation: audit.OperationCreate, EntityType: "Note"}
	}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestWorker_ContinuesPastSinkErrors(t *testing.T) {
	calls := 0
	sink := audit.SinkFunc(func(context.Context, audit.Record) error {
		calls++
		return errors.New("sink down")
	})
	inbox := make(chan audit.Record, 2)
	inbox <- audit.Record{EntityType: "Note"}
	inbox <- audit.Record{EntityType: "Note"}
	close(inbox)

	require.NoError(t, NewWorker(sink, inbox, nil).Run(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inbox := make(chan audit.Record)

	done := make(chan error, 1)
	go func() { done <- NewWorker(memory.NewInMemoryStore(), inbox, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_WriteTimeoutUnblocksHungSink(t *testing.T) {
	var deadlines int
	hung := audit.SinkFunc(func(ctx context.Context, _ audit.Record) error {
		if _, ok := ctx.Deadline(); ok {
			deadlines++
		}
		<-ctx.Done()
		return ctx.Err()
	})
	inbox := make(chan audit.Record, 2)
	inbox <- audit.Record{EntityType: "Note"}
	inbox <- audit.Record{EntityType: "Note"}
	close(inbox)

	done := make(chan error, 1)
	go func() {
		done <- NewWorker(hung, inbox, nil, WithWriteTimeout(10*time.Millisecond)).Run(context.Background())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker stuck on a hung sink")
	}
	assert.Equal(t, 2, deadlines)
}
