package calls

import (
	"context"
	"fmt"
	"sync"
)

// Store is the persistence collaborator for call records, keyed by call id.
// Update must be atomic with respect to concurrent mutation of the same
// record; independent records must not serialize against each other.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Update applies mutate under the record's write lock and persists the
	// result. mutate returning an error aborts the update.
	Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error)
}

// MemoryStore is an in-process Store with per-record locking. Used in tests
// and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	mu  sync.Mutex
	rec Record
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("calls: record id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("calls: record %s already exists", rec.ID)
	}
	s.records[rec.ID] = &memoryRecord{rec: *rec}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := entry.rec
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*Record) error) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("calls: record %s not found", id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	working := entry.rec
	if err := mutate(&working); err != nil {
		return nil, err
	}
	entry.rec = working
	out := working
	return &out, nil
}
