package transient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	records map[string]*Record
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Get retrieves a record by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Save stores a copy of the record
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("transient record must have an ID")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec.UpdatedAt = s.now()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Delete removes a record
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error { return nil }

// Count returns the number of stored records
func (s *MemoryStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}

// Purge removes records not updated since before
func (s *MemoryStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int64
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(before) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
