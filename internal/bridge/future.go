package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// Future is a single-assignment handle for the outcome of one bridged call.
type Future struct {
	id   int64
	reg  *Registry
	done chan struct{}
	once sync.Once
	env  result.Envelope

	// onLocal is notified when Await completes the future itself.
	onLocal func(result.Code)
}

func newFuture(id int64, reg *Registry) *Future {
	return &Future{id: id, reg: reg, done: make(chan struct{})}
}

// ID returns the correlation id assigned to the call.
func (f *Future) ID() int64 { return f.id }

// Done is closed once the future holds its envelope.
func (f *Future) Done() <-chan struct{} { return f.done }

// Envelope returns the resolved envelope without blocking. The boolean is
// false while the call is still pending.
func (f *Future) Envelope() (result.Envelope, bool) {
	select {
	case <-f.done:
		return f.env, true
	default:
		return result.Envelope{}, false
	}
}

// Await blocks until the future resolves or ctx ends.
//
// When ctx ends first, the call id is abandoned so that a late callback is
// treated as unknown, and a CodeTimeout (deadline) or CodeCanceled envelope is
// returned. The remote operation is not cancelled.
func (f *Future) Await(ctx context.Context) result.Envelope {
	select {
	case <-f.done:
		return f.env
	case <-ctx.Done():
	}

	if f.reg == nil || !f.reg.Abandon(f.id) {
		// A resolver already removed the entry; its value is on the way.
		<-f.done
		return f.env
	}

	code := result.CodeCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = result.CodeTimeout
	}
	f.complete(result.LocalEnvelope(f.id, code, ctx.Err().Error()))
	if f.onLocal != nil {
		f.onLocal(code)
	}
	return f.env
}

func (f *Future) complete(env result.Envelope) bool {
	completed := false
	f.once.Do(func() {
		f.env = env
		close(f.done)
		completed = true
	})
	return completed
}
