package loopback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

// ErrClosed is returned by calls on a closed Transport.
var ErrClosed = errors.New("loopback: transport closed")

type listener struct {
	channel   string
	eventType int
	handler   func(events.Envelope)
}

// Transport delivers calls to a transport.Handler in the same process. Each
// reply is delivered on its own goroutine, never on the caller's.
type Transport struct {
	h       transport.Handler
	latency time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	listeners map[string]listener
	unsubs    map[string]func()
}

// Option configures a Transport.
type Option func(*Transport)

// WithLatency delays every reply by d.
func WithLatency(d time.Duration) Option {
	return func(t *Transport) { t.latency = d }
}

// New creates a Transport bound to h.
//
// Precondition: h must be non-nil.
func New(h transport.Handler, opts ...Option) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		h:         h,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string]listener),
		unsubs:    make(map[string]func()),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call encodes args and hands them to the Handler asynchronously. The reply
// envelope is passed to cb as JSON. Calls pending at Close are never answered.
func (t *Transport) Call(id int64, method string, args any, cb func(raw string)) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("loopback: encoding %s args: %w", method, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		if t.latency > 0 {
			timer := time.NewTimer(t.latency)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-t.ctx.Done():
				return
			}
		}
		reply := t.h.Handle(t.ctx, method, raw)
		if t.ctx.Err() != nil {
			return
		}
		data, err := json.Marshal(reply.Envelope(id))
		if err != nil {
			return
		}
		cb(string(data))
	}()
	return nil
}

// Listen registers handler for events of eventType on channel.
func (t *Transport) Listen(channel string, eventType int, handler func(events.Envelope)) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	t.listeners[id] = listener{channel: channel, eventType: eventType, handler: handler}
	if _, ok := t.unsubs[channel]; !ok {
		t.unsubs[channel] = t.h.Subscribe(channel, func(env events.Envelope) { t.dispatch(channel, env) })
	}
	return id, nil
}

// Unlisten removes a listener. Unknown ids are ignored.
func (t *Transport) Unlisten(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.listeners[id]
	if !ok {
		return nil
	}
	delete(t.listeners, id)
	for _, other := range t.listeners {
		if other.channel == l.channel {
			return nil
		}
	}
	if unsub, ok := t.unsubs[l.channel]; ok {
		unsub()
		delete(t.unsubs, l.channel)
	}
	return nil
}

// Close stops delivering replies and events and waits for in-flight handlers.
// It is idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()
	for ch, unsub := range t.unsubs {
		unsub()
		delete(t.unsubs, ch)
	}
	clear(t.listeners)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Transport) dispatch(channel string, env events.Envelope) {
	t.mu.Lock()
	var handlers []func(events.Envelope)
	for _, l := range t.listeners {
		if l.channel == channel && l.eventType == env.EventType {
			handlers = append(handlers, l.handler)
		}
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}
