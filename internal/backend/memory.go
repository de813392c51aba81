package backend

import (
	"context"
	"sort"
	"sync"
)

// Memory is a non-persistent backend used as the degraded-mode fallback
// when neither durable substrate can bootstrap, and as a test double. It
// mimics the flat keyed backend's namespace conventions.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Method reports MethodFlatKeyed: the in-memory store is flat, and the
// history store should lay out partitions the flat way on top of it.
func (m *Memory) Method() Method { return MethodFlatKeyed }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// ReadKey returns the value stored at key, or ErrKeyAbsent.
func (m *Memory) ReadKey(_ context.Context, key string) ([]byte, error) {
	mustKey(key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, ErrKeyAbsent
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// WriteKey stores a copy of value at key.
func (m *Memory) WriteKey(_ context.Context, key string, value []byte) error {
	mustKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// DeleteKey removes the value at key; absent keys are ignored.
func (m *Memory) DeleteKey(_ context.Context, key string) error {
	mustKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ListChildren scans the key namespace the same way the flat keyed backend
// does.
func (m *Memory) ListChildren(_ context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	for key := range m.data {
		if child, ok := childSegment(key, path); ok {
			seen[child] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Len returns the number of stored keys. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
