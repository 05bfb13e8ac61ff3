package grpcconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
)

// ErrClosed is returned by calls on a closed Conn.
var ErrClosed = errors.New("grpcconn: connection closed")

// DefaultCallTimeout bounds each unary call so that no goroutine outlives an
// unanswered request indefinitely.
const DefaultCallTimeout = time.Minute

type listener struct {
	channel   string
	eventType int
	handler   func(events.Envelope)
}

// Conn is a client transport over a gRPC connection.
type Conn struct {
	cc          *grpc.ClientConn
	ownsCC      bool
	logger      *zap.Logger
	callTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	listeners map[string]listener
	streams   map[string]context.CancelFunc
}

// Dial creates a gRPC client for target and wraps it in a Conn that owns it.
//
// Precondition: logger must be non-nil.
func Dial(target string, logger *zap.Logger, opts ...grpc.DialOption) (*Conn, error) {
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcconn: creating client for %s: %w", target, err)
	}
	c := New(cc, logger)
	c.ownsCC = true
	return c, nil
}

// New wraps an existing client connection. Close does not close cc.
//
// Precondition: cc and logger must be non-nil.
func New(cc *grpc.ClientConn, logger *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cc:          cc,
		logger:      logger,
		callTimeout: DefaultCallTimeout,
		ctx:         ctx,
		cancel:      cancel,
		listeners:   make(map[string]listener),
		streams:     make(map[string]context.CancelFunc),
	}
}

// Call issues the unary Call RPC on its own goroutine and passes the reply
// envelope to cb as JSON. An RPC error is reported to cb as a CodeFailure
// envelope; calls cut short by Close are never answered.
func (c *Conn) Call(id int64, method string, args any, cb func(raw string)) error {
	req, err := callRequest(id, method, args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
		defer cancel()

		resp := new(structpb.Struct)
		if err := c.cc.Invoke(ctx, callMethod, req, resp); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("grpcconn: call failed",
				zap.Int64("call_id", id),
				zap.String("method", method),
				zap.Error(err),
			)
			raw, _ := json.Marshal(result.Envelope{
				CallID:     id,
				ReturnCode: result.CodeFailure,
				Message:    "transport: " + status.Convert(err).Message(),
			})
			cb(string(raw))
			return
		}
		raw, err := protojson.Marshal(resp)
		if err != nil {
			c.logger.Error("grpcconn: encoding reply", zap.Int64("call_id", id), zap.Error(err))
			return
		}
		cb(string(raw))
	}()
	return nil
}

func callRequest(id int64, method string, args any) (*structpb.Struct, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("grpcconn: encoding %s args: %w", method, err)
	}
	argStruct := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, argStruct); err != nil {
		return nil, fmt.Errorf("grpcconn: %s args must encode as a JSON object: %w", method, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"callId": structpb.NewNumberValue(float64(id)),
		"method": structpb.NewStringValue(method),
		"args":   structpb.NewStructValue(argStruct),
	}}, nil
}

// Listen registers handler for events of eventType on channel. The first
// listener on a channel opens an Events stream and waits for the server's
// acknowledgement before returning.
func (c *Conn) Listen(channel string, eventType int, handler func(events.Envelope)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if _, ok := c.streams[channel]; !ok {
		cancel, err := c.openStream(channel)
		if err != nil {
			return "", err
		}
		c.streams[channel] = cancel
	}
	id := uuid.NewString()
	c.listeners[id] = listener{channel: channel, eventType: eventType, handler: handler}
	return id, nil
}

func (c *Conn) openStream(channel string) (context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(c.ctx)
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], eventsMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("grpcconn: opening events stream for %s: %w", channel, err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{"channel": structpb.NewStringValue(channel)}}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fmt.Errorf("grpcconn: subscribing to %s: %w", channel, err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("grpcconn: subscribing to %s: %w", channel, err)
	}
	if err := stream.RecvMsg(new(structpb.Struct)); err != nil {
		cancel()
		return nil, fmt.Errorf("grpcconn: awaiting %s subscription: %w", channel, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.recvLoop(ctx, channel, stream)
	}()
	return cancel, nil
}

func (c *Conn) recvLoop(ctx context.Context, channel string, stream grpc.ClientStream) {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("grpcconn: events stream ended", zap.String("channel", channel), zap.Error(err))
			}
			return
		}
		raw, err := protojson.Marshal(msg)
		if err != nil {
			c.logger.Error("grpcconn: re-encoding event", zap.String("channel", channel), zap.Error(err))
			continue
		}
		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Error("grpcconn: event not decodable", zap.String("channel", channel), zap.Error(err))
			continue
		}
		c.dispatch(channel, env)
	}
}

// Unlisten removes a listener and closes the channel's stream when it was the
// last one. Unknown ids are ignored.
func (c *Conn) Unlisten(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listeners[id]
	if !ok {
		return nil
	}
	delete(c.listeners, id)
	for _, other := range c.listeners {
		if other.channel == l.channel {
			return nil
		}
	}
	if cancel, ok := c.streams[l.channel]; ok {
		cancel()
		delete(c.streams, l.channel)
	}
	return nil
}

// Close cancels every in-flight call and stream and waits for their
// goroutines. It closes the client connection only when Dial created it.
// It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	clear(c.listeners)
	clear(c.streams)
	c.mu.Unlock()

	c.wg.Wait()
	if c.ownsCC {
		if err := c.cc.Close(); err != nil {
			return fmt.Errorf("grpcconn: closing client: %w", err)
		}
	}
	return nil
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
