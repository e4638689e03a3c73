package kv

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Store used by tests and single-node setups. The
// clock is injectable so retention behavior can be exercised without waiting.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty in-memory store on the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an in-memory store driven by now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: now}
}

func (m *Memory) get(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key string, value []byte, retention time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memoryEntry{value: stored, expiresAt: m.now().Add(retention)}
	return nil
}

// SetMulti implements Store. The single lock makes the batch atomic with
// respect to every other accessor.
func (m *Memory) SetMulti(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		stored := make([]byte, len(e.Value))
		copy(stored, e.Value)
		m.entries[e.Key] = memoryEntry{value: stored, expiresAt: m.now().Add(e.Retention)}
	}
	return nil
}

// Remaining implements Store.
func (m *Memory) Remaining(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.get(key)
	if !ok {
		return 0, ErrNotFound
	}
	return entry.expiresAt.Sub(m.now()), nil
}

// ExtendRetention implements Store.
func (m *Memory) ExtendRetention(ctx context.Context, key string, threshold, extendTo time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.get(key)
	if !ok {
		return nil
	}
	if entry.expiresAt.Sub(m.now()) < threshold {
		entry.expiresAt = m.now().Add(extendTo)
		m.entries[key] = entry
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ Store = (*Memory)(nil)
