package transport

import "github.com/cory-johannsen/roomlink/internal/room"

// Method names understood by a room service Handler.
const (
	MethodBaseInitialize  = "base.initialize"
	MethodConnect         = "matchmaking.connect"
	MethodSetActor        = "matchmaking.set_actor"
	MethodListRooms       = "matchmaking.list_rooms"
	MethodJoinRoom        = "matchmaking.join_room"
	MethodCreateRoom      = "matchmaking.create_room"
	MethodLeaveRoom       = "matchmaking.leave_room"
	MethodCloseRoom       = "matchmaking.close_room"
	MethodRealtimeConnect = "realtime.connect"
	MethodRealtimeSend    = "realtime.send"
)

// MatchmakingChannel names the channel carrying membership events for one
// matchmaking client.
func MatchmakingChannel(clientID string) string {
	return "matchmaking/" + clientID
}

// RealtimeChannel names the channel carrying realtime events for one room.
func RealtimeChannel(roomID string) string {
	return "realtime/" + roomID
}

// ConnectRequest asks for a matchmaking client bound to an application.
type ConnectRequest struct {
	AppID string `json:"appId"`
}

// ConnectResponse identifies the matchmaking client in later calls.
type ConnectResponse struct {
	ClientID string `json:"clientId"`
}

// ClientRequest carries only the matchmaking client id.
type ClientRequest struct {
	ClientID string `json:"clientId"`
}

// SetActorRequest registers the local actor for a client.
type SetActorRequest struct {
	ClientID string     `json:"clientId"`
	Actor    room.Actor `json:"actor"`
}

// RoomList is the payload of MethodListRooms.
type RoomList struct {
	Rooms []room.Record `json:"rooms"`
}

// JoinRoomRequest asks to join an existing room.
type JoinRoomRequest struct {
	ClientID string `json:"clientId"`
	RoomID   string `json:"roomId"`
}

// CreateRoomRequest asks to create a room owned by the client.
type CreateRoomRequest struct {
	ClientID string    `json:"clientId"`
	Spec     room.Spec `json:"spec"`
}

// RealtimeConnectRequest opens the realtime channel of a room.
type RealtimeConnectRequest struct {
	ClientID string `json:"clientId"`
	RoomID   string `json:"roomId"`
}

// RealtimeConnectResponse names the channel to listen on.
type RealtimeConnectResponse struct {
	Channel string `json:"channel"`
}

// SendRequest publishes a message on a room's realtime channel.
type SendRequest struct {
	ClientID string `json:"clientId"`
	RoomID   string `json:"roomId"`
	Body     string `json:"body"`
}
