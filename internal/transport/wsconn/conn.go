package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/events"
)

// ErrClosed is returned by calls on a closed or broken connection.
var ErrClosed = errors.New("wsconn: connection closed")

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 5 * time.Second

// eventQueueSize is how many events may wait for the dispatch goroutine before
// the read loop stops reading.
const eventQueueSize = 256

type listener struct {
	channel   string
	eventType int
	handler   func(events.Envelope)
}

type queuedEvent struct {
	channel string
	env     events.Envelope
}

// Conn is a client transport over one websocket connection. Replies are
// delivered from the read goroutine. Events are delivered in arrival order
// from a separate dispatch goroutine, so an event handler may make calls on
// the same Conn.
type Conn struct {
	ws           *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	queue      chan queuedEvent
	dispatched chan struct{}

	mu        sync.Mutex
	closed    bool
	calls     map[int64]func(string)
	listeners map[string]listener
	channels  map[string]int
}

// Option configures a Conn.
type Option func(*Conn)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Dial connects to url and starts the read loop.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a live Conn or a non-nil error; the caller must Close the Conn.
func Dial(ctx context.Context, url string, logger *zap.Logger, opts ...Option) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dialing %s: %w", url, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:           ws,
		logger:       logger.With(zap.String("conn", uuid.NewString())),
		writeTimeout: DefaultWriteTimeout,
		ctx:          loopCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
		queue:        make(chan queuedEvent, eventQueueSize),
		dispatched:   make(chan struct{}),
		calls:        make(map[int64]func(string)),
		listeners:    make(map[string]listener),
		channels:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatchLoop()
	go c.readLoop()
	return c, nil
}

// Call sends a call frame. cb receives the raw reply envelope.
func (c *Conn) Call(id int64, method string, args any, cb func(raw string)) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("wsconn: encoding %s args: %w", method, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.calls[id] = cb
	c.mu.Unlock()

	if err := c.write(Frame{Type: FrameCall, CallID: id, Method: method, Args: raw}); err != nil {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Listen registers handler for events of eventType on channel. The server is
// asked to subscribe the first time a channel gains a listener.
func (c *Conn) Listen(channel string, eventType int, handler func(events.Envelope)) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	id := uuid.NewString()
	c.listeners[id] = listener{channel: channel, eventType: eventType, handler: handler}
	c.channels[channel]++
	first := c.channels[channel] == 1
	c.mu.Unlock()

	if first {
		if err := c.write(Frame{Type: FrameListen, Channel: channel}); err != nil {
			c.mu.Lock()
			delete(c.listeners, id)
			c.dropChannelLocked(channel)
			c.mu.Unlock()
			return "", err
		}
	}
	return id, nil
}

// Unlisten removes a listener. Unknown ids are ignored.
func (c *Conn) Unlisten(id string) error {
	c.mu.Lock()
	l, ok := c.listeners[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.listeners, id)
	last := c.dropChannelLocked(l.channel)
	closed := c.closed
	c.mu.Unlock()

	if last && !closed {
		return c.write(Frame{Type: FrameUnlisten, Channel: l.channel})
	}
	return nil
}

func (c *Conn) dropChannelLocked(channel string) bool {
	c.channels[channel]--
	if c.channels[channel] <= 0 {
		delete(c.channels, channel)
		return true
	}
	return false
}

// Close closes the websocket and waits for the read and dispatch goroutines to
// exit. Calls still pending are never answered. It is idempotent.
//
// Precondition: must not be called from an event handler.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.ws.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.logger.Debug("wsconn: close handshake incomplete", zap.Error(err))
	}
	c.cancel()
	<-c.done
	return nil
}

func (c *Conn) write(f Frame) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, f); err != nil {
		return fmt.Errorf("wsconn: writing %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer func() {
		close(c.queue)
		<-c.dispatched
	}()
	defer c.cancel()
	for {
		var f Frame
		if err := wsjson.Read(c.ctx, c.ws, &f); err != nil {
			c.mu.Lock()
			closing := c.closed
			c.closed = true
			pending := len(c.calls)
			clear(c.calls)
			c.mu.Unlock()
			if !closing {
				c.logger.Warn("wsconn: read loop ended",
					zap.Error(err),
					zap.Int("pending_calls", pending),
				)
			}
			return
		}

		switch f.Type {
		case FrameReply:
			c.mu.Lock()
			cb, ok := c.calls[f.CallID]
			delete(c.calls, f.CallID)
			c.mu.Unlock()
			if !ok {
				c.logger.Warn("wsconn: reply for unknown call", zap.Int64("call_id", f.CallID))
				continue
			}
			cb(string(f.Reply))
		case FrameEvent:
			if f.Event == nil {
				c.logger.Warn("wsconn: event frame without envelope", zap.String("channel", f.Channel))
				continue
			}
			select {
			case c.queue <- queuedEvent{channel: f.Channel, env: *f.Event}:
			case <-c.ctx.Done():
				return
			}
		default:
			c.logger.Warn("wsconn: unexpected frame", zap.String("type", f.Type))
		}
	}
}

// dispatchLoop runs event handlers until the read loop closes the queue.
// Events still queued after Close are dropped.
func (c *Conn) dispatchLoop() {
	defer close(c.dispatched)
	for ev := range c.queue {
		if c.ctx.Err() != nil {
			continue
		}
		c.dispatch(ev.channel, ev.env)
	}
}

func (c *Conn) dispatch(channel string, env events.Envelope) {
	c.mu.Lock()
	var handlers []func(events.Envelope)
	for _, l := range c.listeners {
		if l.channel == channel && l.eventType == env.EventType {
			handlers = append(handlers, l.handler)
		}
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}
