package storage

import (
	"context"
	"sync"
	"time"

	"github.com/iamgideonidoko/beacon/pkg/clock"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Storage. With a positive ttl every write
// expires ttl after it was made.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	clock clock.Clock
}

func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		clock: clk,
	}
}

func (m *Memory) GetItem(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	if !item.expiresAt.IsZero() && !m.clock.Now().Before(item.expiresAt) {
		delete(m.items, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if m.ttl > 0 {
		item.expiresAt = m.clock.Now().Add(m.ttl)
	}
	m.items[key] = item
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
