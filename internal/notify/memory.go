package notify

import (
	"context"
	"sync"
)

// Memory collects notifications in process. Used by tests and as a fallback
// sink when no downstream transport is configured.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []Notification
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Emit implements Sink. Duplicate deliveries (same Key) are dropped.
func (m *Memory) Emit(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := n.Key()
	if _, ok := m.seen[key]; ok {
		return nil
	}
	m.seen[key] = struct{}{}
	m.list = append(m.list, n)
	return nil
}

// Notifications returns a copy of everything emitted so far, in order.
func (m *Memory) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.list))
	copy(out, m.list)
	return out
}

// Last returns the most recent notification, if any.
func (m *Memory) Last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.list) == 0 {
		return Notification{}, false
	}
	return m.list[len(m.list)-1], true
}

var _ Sink = (*Memory)(nil)
