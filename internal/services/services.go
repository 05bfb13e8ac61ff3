// Package services implements the base play, matchmaking and realtime service
// clients on top of the call bridge. Every operation is one bridged call whose
// reply envelope is parsed into a typed result.
package services

import (
	"context"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
)

// Transport carries calls and event subscriptions to the remote service.
// Call must eventually invoke cb exactly once with the JSON reply envelope
// unless it returns an error; cb may run on any goroutine.
type Transport interface {
	Call(id int64, method string, args any, cb func(raw string)) error
	Listen(channel string, eventType int, handler func(events.Envelope)) (string, error)
	Unlisten(listenerID string) error
	Close() error
}

// ListenerID identifies a registered network event listener.
type ListenerID string

// Base is the play service every other service depends on.
type Base interface {
	Initialize(ctx context.Context) result.Result[struct{}]
	Initialized() bool
}

// MatchmakingConnector creates matchmaking clients bound to an application id.
type MatchmakingConnector interface {
	Connect(ctx context.Context, appID string) result.Result[Matchmaking]
}

// Matchmaking is the room/actor service boundary.
type Matchmaking interface {
	// ClientID identifies this client to the remote service.
	ClientID() string
	SetActor(ctx context.Context, actor room.Actor) result.Result[struct{}]
	GetAvailableRooms(ctx context.Context) result.Result[[]room.Record]
	JoinRoom(ctx context.Context, roomID string) result.Result[room.Record]
	CreateRoom(ctx context.Context, spec room.Spec) result.Result[room.Record]
	LeaveRoom(ctx context.Context) result.Result[struct{}]
	CloseRoom(ctx context.Context) result.Result[struct{}]
	RegisterNetworkEventListener(kind events.Kind, handler func(events.Envelope)) (ListenerID, error)
	UnregisterNetworkEventListener(id ListenerID) error
}

// RealtimeConnector opens the realtime channel of a room for a matchmaking
// client that is a member of it.
type RealtimeConnector interface {
	Initialize(ctx context.Context, clientID, roomID string) result.Result[Realtime]
}

// Realtime is the secondary channel used for in-room messages.
type Realtime interface {
	Send(ctx context.Context, body string) result.Result[struct{}]
	RegisterNetworkEventListener(kind events.Kind, handler func(events.Envelope)) (ListenerID, error)
	UnregisterNetworkEventListener(id ListenerID) error
}
