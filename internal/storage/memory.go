package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process PendingStore used by the memory backend
// and in tests. Entries survive only for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   map[string]string
	createdAt time.Time
}

var _ PendingStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, payload map[string]string) (string, error) {
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := newID()
	s.entries[id] = memoryEntry{payload: copied, createdAt: time.Now()}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make(map[string]string, len(entry.payload))
	for k, v := range entry.payload {
		copied[k] = v
	}
	return copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.entries {
		if entry.createdAt.Before(olderThan) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
