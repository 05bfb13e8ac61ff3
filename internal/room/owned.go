package room

import "sync"

// OwnedStore remembers the ids of rooms this client created. It is a join
// priority hint only and never an authority on ownership.
type OwnedStore interface {
	Add(id string)
	Contains(id string) bool
	Len() int
}

// MemoryOwnedStore is an in-process OwnedStore. Entries are never evicted.
// All methods are safe for concurrent use.
type MemoryOwnedStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryOwnedStore creates an empty store.
func NewMemoryOwnedStore() *MemoryOwnedStore {
	return &MemoryOwnedStore{ids: make(map[string]struct{})}
}

// Add records id. Empty ids are ignored.
func (s *MemoryOwnedStore) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Contains reports whether id was recorded.
func (s *MemoryOwnedStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of recorded ids.
func (s *MemoryOwnedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
