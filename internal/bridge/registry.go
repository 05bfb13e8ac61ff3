package bridge

import (
	"sync"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// Registry maps call ids to pending futures. All methods are safe for
// concurrent use; the single mutex guards id allocation, lookup and removal.
type Registry struct {
	mu      sync.Mutex
	next    int64
	pending map[int64]*Future
}

// NewRegistry creates an empty Registry whose first issued id is 1.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[int64]*Future)}
}

// Register allocates the next free id and stores a new future under it.
//
// Postcondition: the returned future's id is not shared with any other
// outstanding entry.
func (r *Registry) Register() *Future {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		r.next++
		if r.next <= 0 {
			r.next = 1
		}
		if _, taken := r.pending[r.next]; !taken {
			break
		}
	}
	f := newFuture(r.next, r)
	r.pending[f.id] = f
	return f
}

// Resolve removes the entry for env.CallID and completes its future with env.
//
// Postcondition: returns false, and changes nothing, when the id is unknown
// (never issued, already resolved, abandoned or cancelled).
func (r *Registry) Resolve(env result.Envelope) bool {
	f, ok := r.take(env.CallID)
	if !ok {
		return false
	}
	return f.complete(env)
}

// Abandon removes id without resolving it. The caller that wins the removal
// owns the right to complete the future.
func (r *Registry) Abandon(id int64) bool {
	_, ok := r.take(id)
	return ok
}

// CancelAll removes every outstanding entry and completes each future with
// CodeCanceled. It returns the number of futures cancelled.
func (r *Registry) CancelAll(message string) int {
	r.mu.Lock()
	drained := make([]*Future, 0, len(r.pending))
	for id, f := range r.pending {
		drained = append(drained, f)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, f := range drained {
		f.complete(result.LocalEnvelope(f.id, result.CodeCanceled, message))
	}
	return len(drained)
}

// Len returns the number of outstanding entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) take(id int64) (*Future, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return f, ok
}
