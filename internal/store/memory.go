package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and single-node dev runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage)}
}

func (m *Memory) Load(_ context.Context, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot, nil
}

func (m *Memory) Save(_ context.Context, id string, snapshot json.RawMessage) error {
	cp := make(json.RawMessage, len(snapshot))
	copy(cp, snapshot)
	m.mu.Lock()
	m.docs[id] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
