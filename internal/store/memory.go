package store

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store, used in tests and when persistence
// is disabled.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if ok {
		s.Data = append([]byte(nil), s.Data...)
	}
	return s, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, snap Snapshot) error {
	snap.Data = append([]byte(nil), snap.Data...)
	m.mu.Lock()
	m.snaps[key] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snaps, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
