package session

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks live sessions by key and enforces that at most one of them
// is in a room at a time.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	inRoom   string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// add registers s under its key.
//
// Postcondition: Returns an error if the key is already registered.
func (r *Registry) add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.key]; exists {
		return fmt.Errorf("session %q already registered", s.key)
	}
	r.sessions[s.key] = s
	return nil
}

// remove drops key and releases its in-room claim. Unknown keys are ignored.
func (r *Registry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
	if r.inRoom == key {
		r.inRoom = ""
	}
}

// claim marks key as the in-room session. It succeeds when no session holds
// the claim or key already holds it.
func (r *Registry) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inRoom != "" && r.inRoom != key {
		return false
	}
	r.inRoom = key
	return true
}

// release drops key's in-room claim if it holds it.
func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inRoom == key {
		r.inRoom = ""
	}
}

// Get returns the session registered under key.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// InRoom returns the key of the session currently holding the in-room claim.
func (r *Registry) InRoom() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inRoom, r.inRoom != ""
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
