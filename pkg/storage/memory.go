package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// MemoryStore is an in-process Store. A zero ttl keeps entries forever.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
//
// With a positive ttl every Put stamps the entry with an expiry and sweeps
// expired entries, so the map only grows with live keys. Get never returns an
// expired snapshot even before the next sweep.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores s, replacing any previous snapshot with the same kind and key.
func (m *MemoryStore) Put(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := memoryEntry{snapshot: s}
	if m.ttl > 0 {
		e.expiresAt = now.Add(m.ttl)
		m.evictExpired(now)
	}
	m.entries[storeKey(s.Kind, s.Key)] = e
	return nil
}

// Get returns the live snapshot for kind and key.
func (m *MemoryStore) Get(_ context.Context, kind, key string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[storeKey(kind, key)]
	if !ok || m.expired(e, m.now()) {
		return Snapshot{}, false, nil
	}
	return e.snapshot, true, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) expired(e memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// evictExpired must be called with the write lock held.
func (m *MemoryStore) evictExpired(now time.Time) {
	for k, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, k)
		}
	}
}
