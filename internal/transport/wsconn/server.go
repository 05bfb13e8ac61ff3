package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

const outboundBuffer = 64

// Server upgrades HTTP requests to websocket connections and serves each one
// against a transport.Handler.
type Server struct {
	h      transport.Handler
	logger *zap.Logger
}

// NewServer creates a Server.
//
// Precondition: h and logger must be non-nil.
func NewServer(h transport.Handler, logger *zap.Logger) *Server {
	return &Server{h: h, logger: logger}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error("wsconn: accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	logger := s.logger.With(zap.String("peer", uuid.NewString()))
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan Frame, outboundBuffer)
	subs := make(map[string]func())
	var calls sync.WaitGroup

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, conn, out, subs, &calls, logger)
	}()
	go func() {
		errCh <- writeLoop(ctx, conn, out)
	}()

	err = <-errCh
	cancel()
	<-errCh
	calls.Wait()
	for _, unsub := range subs {
		unsub()
	}

	status := websocket.CloseStatus(err)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) &&
		status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		logger.Warn("wsconn: connection closed with error", zap.Error(err))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Frame, subs map[string]func(), calls *sync.WaitGroup, logger *zap.Logger) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}

		switch f.Type {
		case FrameCall:
			calls.Add(1)
			go func(f Frame) {
				defer calls.Done()
				reply := s.h.Handle(ctx, f.Method, f.Args)
				raw, err := json.Marshal(reply.Envelope(f.CallID))
				if err != nil {
					logger.Error("wsconn: encoding reply", zap.Int64("call_id", f.CallID), zap.Error(err))
					return
				}
				enqueue(ctx, out, Frame{Type: FrameReply, CallID: f.CallID, Reply: raw})
			}(f)
		case FrameListen:
			if _, ok := subs[f.Channel]; ok {
				continue
			}
			channel := f.Channel
			subs[channel] = s.h.Subscribe(channel, func(env events.Envelope) {
				enqueue(ctx, out, Frame{Type: FrameEvent, Channel: channel, Event: &env})
			})
		case FrameUnlisten:
			if unsub, ok := subs[f.Channel]; ok {
				unsub()
				delete(subs, f.Channel)
			}
		default:
			logger.Warn("wsconn: unexpected frame", zap.String("type", f.Type))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan Frame) error {
	for {
		select {
		case f := <-out:
			if err := wsjson.Write(ctx, conn, f); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func enqueue(ctx context.Context, out chan<- Frame, f Frame) {
	select {
	case out <- f:
	case <-ctx.Done():
	}
}
