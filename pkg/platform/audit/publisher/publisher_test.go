package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/store/memory"
	"warden/pkg/platform/sentinel"
)

func reservation(id int64, op audit.Operation) audit.Record {
	return audit.Record{Operation: op, EntityType: "Reservation", EntityID: &id}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()
	assert.False(t, pub.Async())

	err := pub.Record(context.Background(), reservation(1, audit.OperationCreate))
	require.NoError(t, err)

	records, err := store.ListByEntity(context.Background(), "Reservation", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OperationCreate, records[0].Operation)
	assert.NotEqual(t, uuid.Nil, records[0].ID)
}

func TestPublisher_SyncModeReturnsSinkError(t *testing.T) {
	boom := errors.New("boom")
	pub := NewPublisher(audit.SinkFunc(func(context.Context, audit.Record) error { return boom }))

	assert.ErrorIs(t, pub.Record(context.Background(), reservation(1, audit.OperationCreate)), boom)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()
	assert.True(t, pub.Async())

	err := pub.Record(context.Background(), reservation(2, audit.OperationUpdate))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)

	records, err := store.ListByEntity(context.Background(), "Reservation", 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OperationUpdate, records[0].Operation)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Record(context.Background(), reservation(3, audit.OperationCreate))
		require.NoError(t, err)
	}

	// Close should drain all records
	pub.Close()

	records, err := store.ListByEntity(context.Background(), "Reservation", 3)
	require.NoError(t, err)
	assert.Len(t, records, 10, "all records should be drained on close")
	assert.Equal(t, 0, pub.Pending())
}

func TestPublisher_BufferFull_IsUnavailable(t *testing.T) {
	release := make(chan struct{})
	blocking := audit.SinkFunc(func(context.Context, audit.Record) error {
		<-release
		return nil
	})
	pub := NewPublisher(blocking, WithAsyncBuffer(1))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Record(context.Background(), reservation(4, audit.OperationCreate)); err != nil {
				mu.Lock()
				defer mu.Unlock()
				assert.ErrorIs(t, err, sentinel.ErrUnavailable)
				assert.Contains(t, err.Error(), "audit buffer full")
				rejected++
			}
		}()
	}
	wg.Wait()

	// At most one record sits in the worker and one in the buffer.
	assert.GreaterOrEqual(t, rejected, 8)
	close(release)
	pub.Close()
}

func TestPublisher_ClosedIsUnavailable(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Record(context.Background(), reservation(5, audit.OperationDelete))
	assert.ErrorIs(t, err, sentinel.ErrClosed)
	assert.Equal(t, audit.FaultSinkUnavailable, audit.ClassifySinkError(err))
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	require.NoError(t, pub.Record(context.Background(), reservation(6, audit.OperationCreate)))

	records, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fixed, records[0].Timestamp)
}

func TestPublisher_PreservesExistingTimestampAndID(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := reservation(7, audit.OperationCreate)
	rec.ID = uuid.MustParse("9a1f8d0c-1111-4222-8333-444455556666")
	rec.Timestamp = customTime

	require.NoError(t, pub.Record(context.Background(), rec))

	records, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, customTime, records[0].Timestamp)
	assert.Equal(t, rec.ID, records[0].ID)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Record(ctx, reservation(8, audit.OperationCreate))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_MultipleRecordsKeepOrder(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	ops := []audit.Operation{audit.OperationCreate, audit.OperationUpdate, audit.OperationDelete}
	for _, op := range ops {
		require.NoError(t, pub.Record(context.Background(), reservation(9, op)))
	}
	pub.Close()

	result, err := store.ListByEntity(context.Background(), "Reservation", 9)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for i, op := range ops {
		assert.Equal(t, op, result[i].Operation)
	}
}

func TestPublisher_CloseDoesNotHangOnStalledSink(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	stalled := audit.SinkFunc(func(ctx context.Context, _ audit.Record) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	})
	pub := NewPublisher(stalled, WithAsyncBuffer(4), WithWriteTimeout(10*time.Millisecond))
	for i := range 3 {
		require.NoError(t, pub.Record(context.Background(), reservation(int64(i+1), audit.OperationCreate)))
	}

	closed := make(chan struct{})
	go func() {
		pub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a stalled sink")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}
