package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// SubscriptionID identifies one subscriber registered with On.
type SubscriptionID uint64

type subscriber struct {
	id SubscriptionID
	fn func(Event)
}

// Router decodes envelopes and invokes the subscribers registered for the
// decoded kind. All methods are safe for concurrent use; subscribers run on the
// dispatching goroutine, outside the router lock.
type Router struct {
	mu     sync.RWMutex
	next   SubscriptionID
	subs   map[Kind][]subscriber
	fields []zap.Field
	logger *zap.Logger
}

// NewRouter creates a Router with no subscribers.
//
// Precondition: logger must be non-nil.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		subs:   make(map[Kind][]subscriber),
		logger: logger,
	}
}

// SetContext replaces the fields attached to every dispatch log line, such as
// the session key and current room id.
func (r *Router) SetContext(fields ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Clipped so concurrent appends in Dispatch never share a backing array.
	r.fields = slices.Clip(append([]zap.Field(nil), fields...))
}

// On registers fn for events of type E.
//
// Postcondition: fn is invoked for every successfully decoded event of E's
// kind until Off or Clear removes it.
func On[E Event](r *Router, fn func(E)) SubscriptionID {
	var zero E
	return r.add(zero.Kind(), func(ev Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	})
}

func (r *Router) add(kind Kind, fn func(Event)) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.subs[kind] = append(r.subs[kind], subscriber{id: r.next, fn: fn})
	return r.next
}

// Off removes a subscriber. It returns false if id is not registered.
func (r *Router) Off(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, list := range r.subs {
		for i, s := range list {
			if s.id != id {
				continue
			}
			r.subs[kind] = append(list[:i:i], list[i+1:]...)
			if len(r.subs[kind]) == 0 {
				delete(r.subs, kind)
			}
			return true
		}
	}
	return false
}

// Clear removes every subscriber.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[Kind][]subscriber)
}

// Count returns the number of subscribers for kind.
func (r *Router) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[kind])
}

// Dispatch decodes env and delivers it to the subscribers of its kind.
// Failed envelopes, unknown kinds and undecodable data are logged and dropped;
// a subscriber panic is recovered so later subscribers and events still run.
// It returns the number of subscribers invoked.
func (r *Router) Dispatch(env Envelope) int {
	r.mu.RLock()
	fields := r.fields
	r.mu.RUnlock()

	if env.ReturnCode != result.CodeSuccess {
		r.logger.Warn("dropping failed event envelope", append(fields,
			zap.Int("event_type", env.EventType),
			zap.Stringer("code", env.ReturnCode),
			zap.String("message", env.Message),
		)...)
		return 0
	}

	kind := Kind(env.EventType)
	ev, err := Decode(kind, env.EventData)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			r.logger.Warn("dropping unknown event type", append(fields,
				zap.Int("event_type", env.EventType),
			)...)
			return 0
		}
		r.logger.Error("event decode failed", append(fields,
			zap.Stringer("kind", kind),
			zap.Error(err),
		)...)
		return 0
	}

	r.mu.RLock()
	list := append([]subscriber(nil), r.subs[kind]...)
	r.mu.RUnlock()

	for _, s := range list {
		r.invoke(s, ev, fields)
	}
	return len(list)
}

// DispatchRaw decodes a JSON envelope and dispatches it.
func (r *Router) DispatchRaw(raw string) int {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.mu.RLock()
		fields := r.fields
		r.mu.RUnlock()
		r.logger.Error("event envelope not decodable", append(fields, zap.Error(err))...)
		return 0
	}
	return r.Dispatch(env)
}

func (r *Router) invoke(s subscriber, ev Event, fields []zap.Field) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event subscriber panicked", append(fields,
				zap.Stringer("kind", ev.Kind()),
				zap.Uint64("subscription", uint64(s.id)),
				zap.String("panic", fmt.Sprint(rec)),
			)...)
		}
	}()
	s.fn(ev)
}
