package queue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/storage"
)

func newStore(capacity int) (*FailureStore, storage.Storage) {
	mem := storage.NewMemory(0, clock.NewFake(epoch))
	return NewFailureStore(mem, "", capacity, logger.New(logger.ERROR, io.Discard)), mem
}

func TestFailureStoreEvictsOldest(t *testing.T) {
	store, _ := newStore(0)
	ctx := context.Background()

	for b := range 105 {
		batch := make([]event.Event, 10)
		for i := range batch {
			batch[i] = testEvent(b*10 + i)
		}
		store.Append(ctx, batch)
	}

	stored := store.Events(ctx)
	require.Len(t, stored, DefaultFailureCapacity)
	assert.Equal(t, "e50", stored[0].Type)
	assert.Equal(t, "e1049", stored[len(stored)-1].Type)
}

func TestFailureStoreUsesFixedKey(t *testing.T) {
	store, mem := newStore(10)
	ctx := context.Background()

	store.Append(ctx, []event.Event{testEvent(1)})

	raw, err := mem.GetItem(ctx, FailedEventsKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"type":"e1"`)
}

func TestFailureStoreDiscardsCorruptValue(t *testing.T) {
	store, mem := newStore(10)
	ctx := context.Background()

	require.NoError(t, mem.SetItem(ctx, FailedEventsKey, "{not json"))
	assert.Empty(t, store.Events(ctx))

	store.Append(ctx, []event.Event{testEvent(1)})
	assert.Equal(t, 1, store.Len(ctx))
}

func TestFailureStoreDrain(t *testing.T) {
	store, mem := newStore(10)
	ctx := context.Background()

	store.Append(ctx, []event.Event{testEvent(1), testEvent(2)})
	drained := store.Drain(ctx)
	require.Len(t, drained, 2)

	_, err := mem.GetItem(ctx, FailedEventsKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, store.Drain(ctx))
}

var errQuotaExceeded = errors.New("quota exceeded")

// failingStorage wraps a memory store and fails reads or writes on
// demand.
type failingStorage struct {
	*storage.Memory
	getErr error
	setErr error
}

func (f *failingStorage) GetItem(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Memory.GetItem(ctx, key)
}

func (f *failingStorage) SetItem(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.SetItem(ctx, key, value)
}

func TestFailureStoreReadErrorDropsBatch(t *testing.T) {
	backing := &failingStorage{Memory: storage.NewMemory(0, nil), getErr: errors.New("disk I/O error")}
	var logs bytes.Buffer
	store := NewFailureStore(backing, "", 10, logger.New(logger.ERROR, &logs))
	ctx := context.Background()

	store.Append(ctx, []event.Event{testEvent(1)})

	_, err := backing.Memory.GetItem(ctx, FailedEventsKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, logs.String(), "dropping batch")
	assert.Empty(t, store.Drain(ctx))
}

func TestFailureStoreWriteErrorIsLogged(t *testing.T) {
	backing := &failingStorage{Memory: storage.NewMemory(0, nil), setErr: errQuotaExceeded}
	var logs bytes.Buffer
	store := NewFailureStore(backing, "", 10, logger.New(logger.ERROR, &logs))
	ctx := context.Background()

	store.Append(ctx, []event.Event{testEvent(1)})

	assert.Equal(t, 0, store.Len(ctx))
	assert.Contains(t, logs.String(), "quota exceeded")
}

func TestQueueContinuesAfterFailureStoreWriteError(t *testing.T) {
	clk := clock.NewFake(epoch)
	transport := &fakeTransport{failures: 3}
	var logs bytes.Buffer
	log := logger.New(logger.ERROR, &logs)
	backing := &failingStorage{Memory: storage.NewMemory(0, clk), setErr: errQuotaExceeded}
	q := New(transport, NewFailureStore(backing, "", 0, log), DefaultOptions(),
		WithClock(clk), WithLogger(log), WithRandom(func() float64 { return 0 }))

	for i := range 10 {
		q.Send(testEvent(i))
	}
	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	clk.WaitForTimers(1)
	clk.Advance(2 * time.Second)
	q.Wait()

	assert.Equal(t, 3, transport.Calls())
	stats := q.Stats()
	assert.False(t, stats.Sending)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, uint64(1), stats.FailedBatches)
	assert.Contains(t, logs.String(), "Failed to persist failed events")

	for i := 10; i < 20; i++ {
		q.Send(testEvent(i))
	}
	q.Wait()

	batches := transport.Delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "e10", batches[0][0].Type)
	assert.Equal(t, uint64(1), q.Stats().SentBatches)
}
