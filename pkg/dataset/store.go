package dataset

import (
	"sync"
)

// Store keeps the most recent dataset per identity.
// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewStore creates an empty dataset store.
func NewStore() *Store {
	return &Store{datasets: make(map[string]*Dataset)}
}

// Put replaces any dataset held for identity. Last write wins.
func (s *Store) Put(identity string, ds *Dataset) {
	cp := ds.Clone()
	s.mu.Lock()
	s.datasets[identity] = cp
	s.mu.Unlock()
}

// Get returns the dataset for identity and whether one exists.
// Callers must treat the returned dataset as read-only.
func (s *Store) Get(identity string) (*Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[identity]
	return ds, ok
}

// Delete removes the dataset for identity.
func (s *Store) Delete(identity string) {
	s.mu.Lock()
	delete(s.datasets, identity)
	s.mu.Unlock()
}

// Len returns the number of identities holding a dataset.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}
