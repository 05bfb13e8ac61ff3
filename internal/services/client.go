package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/roomlink/internal/bridge"
	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

// Client is the bridge-backed implementation of Base and MatchmakingConnector
// over one Transport. Realtime returns its RealtimeConnector.
type Client struct {
	b      *bridge.Bridge
	t      Transport
	logger *zap.Logger

	initGroup   singleflight.Group
	initialized atomic.Bool
}

// NewClient creates a Client.
//
// Precondition: b, t and logger must be non-nil.
func NewClient(b *bridge.Bridge, t Transport, logger *zap.Logger) *Client {
	if b == nil || t == nil || logger == nil {
		panic("services.NewClient: bridge, transport and logger must not be nil")
	}
	return &Client{b: b, t: t, logger: logger}
}

// Initialized reports whether Initialize has succeeded on this Client.
func (c *Client) Initialized() bool {
	return c.initialized.Load()
}

// Initialize initializes the base play service. It is idempotent; concurrent
// callers share a single in-flight call, bounded by the first caller's context.
//
// Postcondition: on success Initialized() is true.
func (c *Client) Initialize(ctx context.Context) result.Result[struct{}] {
	if c.initialized.Load() {
		return result.Success(struct{}{}, result.Envelope{Message: "already initialized"})
	}
	v, _, _ := c.initGroup.Do(transport.MethodBaseInitialize, func() (any, error) {
		r := bridge.ExecuteWithResult(ctx, c.b, transport.MethodBaseInitialize,
			c.call(transport.MethodBaseInitialize, struct{}{}), noPayload)
		if r.IsSuccess() {
			c.initialized.Store(true)
			c.logger.Info("base service initialized")
		}
		return r, nil
	})
	return v.(result.Result[struct{}])
}

// Connect creates a matchmaking client bound to appID.
func (c *Client) Connect(ctx context.Context, appID string) result.Result[Matchmaking] {
	if appID == "" {
		return result.Fail[Matchmaking](result.CodeInvalidArgument, "matchmaking: app id must not be empty")
	}
	r := bridge.ExecuteWithResult(ctx, c.b, transport.MethodConnect,
		c.call(transport.MethodConnect, transport.ConnectRequest{AppID: appID}),
		func(env result.Envelope) (transport.ConnectResponse, error) {
			resp, err := decodePayload[transport.ConnectResponse](env)
			if err == nil && resp.ClientID == "" {
				err = errors.New("reply carries no client id")
			}
			return resp, err
		})
	return result.Map(r, func(resp transport.ConnectResponse) Matchmaking {
		return &matchmakingClient{c: c, id: resp.ClientID}
	})
}

// Realtime returns the RealtimeConnector sharing this Client's bridge and
// transport.
func (c *Client) Realtime() RealtimeConnector {
	return realtimeConnector{c: c}
}

type realtimeConnector struct {
	c *Client
}

// Initialize opens the realtime channel of roomID for clientID.
func (rc realtimeConnector) Initialize(ctx context.Context, clientID, roomID string) result.Result[Realtime] {
	c := rc.c
	r := bridge.ExecuteWithResult(ctx, c.b, transport.MethodRealtimeConnect,
		c.call(transport.MethodRealtimeConnect, transport.RealtimeConnectRequest{ClientID: clientID, RoomID: roomID}),
		decodePayload[transport.RealtimeConnectResponse])
	return result.Map(r, func(resp transport.RealtimeConnectResponse) Realtime {
		channel := resp.Channel
		if channel == "" {
			channel = transport.RealtimeChannel(roomID)
		}
		return &realtimeClient{c: c, clientID: clientID, roomID: roomID, channel: channel}
	})
}

func (c *Client) send(method string, args any, id int64, cb bridge.Callback) error {
	return c.t.Call(id, method, args, cb)
}

// call returns an Operation issuing method through the bridge and awaiting
// its reply under ctx.
func (c *Client) call(method string, args any) bridge.Operation {
	return func(ctx context.Context) (result.Envelope, error) {
		f := bridge.Invoke2(c.b, c.send, method, args)
		return f.Await(ctx), nil
	}
}

func (c *Client) listen(channel string, kind events.Kind, handler func(events.Envelope)) (ListenerID, error) {
	id, err := c.t.Listen(channel, int(kind), handler)
	if err != nil {
		return "", fmt.Errorf("registering %s listener on %s: %w", kind, channel, err)
	}
	return ListenerID(id), nil
}

func (c *Client) unlisten(id ListenerID) error {
	if err := c.t.Unlisten(string(id)); err != nil {
		return fmt.Errorf("unregistering listener %s: %w", id, err)
	}
	return nil
}

type matchmakingClient struct {
	c  *Client
	id string
}

func (m *matchmakingClient) ClientID() string { return m.id }

func (m *matchmakingClient) SetActor(ctx context.Context, actor room.Actor) result.Result[struct{}] {
	return bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodSetActor,
		m.c.call(transport.MethodSetActor, transport.SetActorRequest{ClientID: m.id, Actor: actor}), noPayload)
}

func (m *matchmakingClient) GetAvailableRooms(ctx context.Context) result.Result[[]room.Record] {
	r := bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodListRooms,
		m.c.call(transport.MethodListRooms, transport.ClientRequest{ClientID: m.id}),
		decodePayload[transport.RoomList])
	return result.Map(r, func(l transport.RoomList) []room.Record {
		if l.Rooms == nil {
			return []room.Record{}
		}
		return l.Rooms
	})
}

func (m *matchmakingClient) JoinRoom(ctx context.Context, roomID string) result.Result[room.Record] {
	return bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodJoinRoom,
		m.c.call(transport.MethodJoinRoom, transport.JoinRoomRequest{ClientID: m.id, RoomID: roomID}),
		decodeRecord)
}

func (m *matchmakingClient) CreateRoom(ctx context.Context, spec room.Spec) result.Result[room.Record] {
	return bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodCreateRoom,
		m.c.call(transport.MethodCreateRoom, transport.CreateRoomRequest{ClientID: m.id, Spec: spec}),
		decodeRecord)
}

func (m *matchmakingClient) LeaveRoom(ctx context.Context) result.Result[struct{}] {
	return bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodLeaveRoom,
		m.c.call(transport.MethodLeaveRoom, transport.ClientRequest{ClientID: m.id}), noPayload)
}

func (m *matchmakingClient) CloseRoom(ctx context.Context) result.Result[struct{}] {
	return bridge.ExecuteWithResult(ctx, m.c.b, transport.MethodCloseRoom,
		m.c.call(transport.MethodCloseRoom, transport.ClientRequest{ClientID: m.id}), noPayload)
}

func (m *matchmakingClient) RegisterNetworkEventListener(kind events.Kind, handler func(events.Envelope)) (ListenerID, error) {
	return m.c.listen(transport.MatchmakingChannel(m.id), kind, handler)
}

func (m *matchmakingClient) UnregisterNetworkEventListener(id ListenerID) error {
	return m.c.unlisten(id)
}

type realtimeClient struct {
	c        *Client
	clientID string
	roomID   string
	channel  string
}

func (r *realtimeClient) Send(ctx context.Context, body string) result.Result[struct{}] {
	return bridge.ExecuteWithResult(ctx, r.c.b, transport.MethodRealtimeSend,
		r.c.call(transport.MethodRealtimeSend, transport.SendRequest{ClientID: r.clientID, RoomID: r.roomID, Body: body}),
		noPayload)
}

func (r *realtimeClient) RegisterNetworkEventListener(kind events.Kind, handler func(events.Envelope)) (ListenerID, error) {
	return r.c.listen(r.channel, kind, handler)
}

func (r *realtimeClient) UnregisterNetworkEventListener(id ListenerID) error {
	return r.c.unlisten(id)
}

func noPayload(result.Envelope) (struct{}, error) {
	return struct{}{}, nil
}

func decodePayload[T any](env result.Envelope) (T, error) {
	var v T
	if env.Payload == "" {
		return v, errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(env.Payload), &v); err != nil {
		return v, fmt.Errorf("decoding payload: %w", err)
	}
	return v, nil
}

func decodeRecord(env result.Envelope) (room.Record, error) {
	rec, err := decodePayload[room.Record](env)
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		return rec, errors.New("room record has no id")
	}
	return rec, nil
}
