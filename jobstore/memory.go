package jobstore

import (
	"context"
	"sync"
	"time"

	"emusync/models"
)

type memoryEntry struct {
	rec     models.DeviceSyncRecord
	expires time.Time
}

// MemoryStore is a process-local Store used when no Redis URL is configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Create(_ context.Context, id string, rec models.DeviceSyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[id] = memoryEntry{rec: cloneRecord(rec), expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.DeviceSyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(id)
	if !ok {
		return models.DeviceSyncRecord{}, ErrNotFound
	}
	return cloneRecord(entry.rec), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (models.DeviceSyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(id)
	if !ok {
		return models.DeviceSyncRecord{}, ErrNotFound
	}
	rec := cloneRecord(entry.rec)
	if err := fn(&rec); err != nil {
		return models.DeviceSyncRecord{}, err
	}
	s.entries[id] = memoryEntry{rec: rec, expires: s.now().Add(s.ttl)}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Close() error { return nil }

// lookup returns a live entry, dropping it if it has expired. Callers hold mu.
func (s *MemoryStore) lookup(id string) (memoryEntry, bool) {
	entry, ok := s.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expires) {
		delete(s.entries, id)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for id, entry := range s.entries {
		if !now.Before(entry.expires) {
			delete(s.entries, id)
		}
	}
}
