package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/storage"
)

const (
	// FailedEventsKey is the storage key holding the JSON array of
	// events that exhausted their delivery attempts.
	FailedEventsKey = "beacon_failed_events"

	DefaultFailureCapacity = 1000
)

// FailureStore is a bounded, durable FIFO of undeliverable events.
// When full, the oldest events are evicted first. Storage errors are
// logged and never returned.
type FailureStore struct {
	mu       sync.Mutex
	storage  storage.Storage
	key      string
	capacity int
	log      *logger.Logger
}

func NewFailureStore(s storage.Storage, key string, capacity int, log *logger.Logger) *FailureStore {
	if key == "" {
		key = FailedEventsKey
	}
	if capacity <= 0 {
		capacity = DefaultFailureCapacity
	}
	if log == nil {
		log = logger.Default()
	}
	return &FailureStore{
		storage:  s,
		key:      key,
		capacity: capacity,
		log:      log.WithField("component", "failure_store"),
	}
}

// Append adds events after the stored ones and trims the list to the
// most recent capacity entries.
func (s *FailureStore) Append(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.loadLocked(ctx)
	if err != nil {
		s.log.Error("Failed to read failed-event store, dropping batch", map[string]any{
			"error":  err.Error(),
			"events": len(events),
		})
		return
	}

	combined := append(stored, events...)
	if overflow := len(combined) - s.capacity; overflow > 0 {
		s.log.Warn("Failed-event store full, evicting oldest events", map[string]any{
			"evicted":  overflow,
			"capacity": s.capacity,
		})
		combined = combined[overflow:]
	}

	if err := s.saveLocked(ctx, combined); err != nil {
		s.log.Error("Failed to persist failed events", map[string]any{
			"error":  err.Error(),
			"events": len(events),
		})
	}
}

// Events returns the stored events, oldest first.
func (s *FailureStore) Events(ctx context.Context) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.loadLocked(ctx)
	if err != nil {
		s.log.Error("Failed to read failed-event store", map[string]any{"error": err.Error()})
		return nil
	}
	return stored
}

func (s *FailureStore) Len(ctx context.Context) int {
	return len(s.Events(ctx))
}

// Drain returns every stored event and clears the store.
func (s *FailureStore) Drain(ctx context.Context) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.loadLocked(ctx)
	if err != nil {
		s.log.Error("Failed to read failed-event store", map[string]any{"error": err.Error()})
		return nil
	}
	if err := s.storage.RemoveItem(ctx, s.key); err != nil {
		// Returning the events anyway would let them be stored twice.
		s.log.Error("Failed to clear failed-event store", map[string]any{"error": err.Error()})
		return nil
	}
	return stored
}

func (s *FailureStore) loadLocked(ctx context.Context) ([]event.Event, error) {
	raw, err := s.storage.GetItem(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []event.Event{}, nil
	}
	if err != nil {
		return nil, err
	}

	var stored []event.Event
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn("Discarding unreadable failed-event store", map[string]any{"error": err.Error()})
		return []event.Event{}, nil
	}
	return stored, nil
}

func (s *FailureStore) saveLocked(ctx context.Context, events []event.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return s.storage.SetItem(ctx, s.key, string(data))
}
