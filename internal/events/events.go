// Package events decodes pushed room and realtime events into a closed set of
// typed records and fans them out to per-kind subscribers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
)

// Kind is the numeric event type carried by an Envelope.
type Kind int

// Membership events are pushed by the matchmaking service; realtime events by
// the realtime channel of the current room.
const (
	KindRoomJoined  Kind = 1
	KindRoomLeft    Kind = 2
	KindActorJoined Kind = 3
	KindActorLeft   Kind = 4
	KindRoomClosed  Kind = 5

	KindMessage           Kind = 101
	KindPositionUpdate    Kind = 102
	KindCompetitionResult Kind = 103
	KindLeaderboardUpdate Kind = 104
)

// MembershipKinds lists the kinds delivered by the matchmaking service.
var MembershipKinds = []Kind{KindRoomJoined, KindRoomLeft, KindActorJoined, KindActorLeft, KindRoomClosed}

// RealtimeKinds lists the kinds delivered by the realtime channel.
var RealtimeKinds = []Kind{KindMessage, KindPositionUpdate, KindCompetitionResult, KindLeaderboardUpdate}

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindRoomJoined:
		return "room_joined"
	case KindRoomLeft:
		return "room_left"
	case KindActorJoined:
		return "actor_joined"
	case KindActorLeft:
		return "actor_left"
	case KindRoomClosed:
		return "room_closed"
	case KindMessage:
		return "message"
	case KindPositionUpdate:
		return "position_update"
	case KindCompetitionResult:
		return "competition_result"
	case KindLeaderboardUpdate:
		return "leaderboard_update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Envelope is a pushed event as delivered by a transport.
type Envelope struct {
	ReturnCode result.Code `json:"returnCode"`
	Message    string      `json:"message,omitempty"`
	EventType  int         `json:"eventType"`
	EventData  string      `json:"eventData"`
}

// Event is implemented only by the record types in this package.
type Event interface {
	Kind() Kind
	sealed()
}

// RoomJoined reports that the local actor entered a room.
type RoomJoined struct {
	RoomID  string `json:"roomId"`
	ActorID string `json:"actorId"`
}

// RoomLeft reports that the local actor left a room.
type RoomLeft struct {
	RoomID  string `json:"roomId"`
	ActorID string `json:"actorId"`
}

// ActorJoined reports another actor entering the current room.
type ActorJoined struct {
	RoomID string     `json:"roomId"`
	Actor  room.Actor `json:"actor"`
}

// ActorLeft reports another actor leaving the current room.
type ActorLeft struct {
	RoomID  string `json:"roomId"`
	ActorID string `json:"actorId"`
	Reason  string `json:"reason,omitempty"`
}

// RoomClosed reports that the room owner closed the room.
type RoomClosed struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

// Message is a chat or application message on the realtime channel.
type Message struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Body     string `json:"body"`
	SentAt   int64  `json:"sentAt"`
}

// PositionUpdate carries an actor's position in the shared scene.
type PositionUpdate struct {
	ActorID string  `json:"actorId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`
}

// Ranking is one placement in a competition result.
type Ranking struct {
	ActorID string `json:"actorId"`
	Rank    int    `json:"rank"`
	Score   int64  `json:"score"`
}

// CompetitionResult reports the outcome of a match inside the room.
type CompetitionResult struct {
	RoomID   string    `json:"roomId"`
	MatchID  string    `json:"matchId"`
	Rankings []Ranking `json:"rankings"`
}

// LeaderboardEntry is one row of a leaderboard.
type LeaderboardEntry struct {
	ActorID string `json:"actorId"`
	Name    string `json:"name"`
	Score   int64  `json:"score"`
}

// LeaderboardUpdate replaces the visible rows of a leaderboard.
type LeaderboardUpdate struct {
	BoardID string             `json:"boardId"`
	Entries []LeaderboardEntry `json:"entries"`
}

func (RoomJoined) Kind() Kind        { return KindRoomJoined }
func (RoomLeft) Kind() Kind          { return KindRoomLeft }
func (ActorJoined) Kind() Kind       { return KindActorJoined }
func (ActorLeft) Kind() Kind         { return KindActorLeft }
func (RoomClosed) Kind() Kind        { return KindRoomClosed }
func (Message) Kind() Kind           { return KindMessage }
func (PositionUpdate) Kind() Kind    { return KindPositionUpdate }
func (CompetitionResult) Kind() Kind { return KindCompetitionResult }
func (LeaderboardUpdate) Kind() Kind { return KindLeaderboardUpdate }

func (RoomJoined) sealed()        {}
func (RoomLeft) sealed()          {}
func (ActorJoined) sealed()       {}
func (ActorLeft) sealed()         {}
func (RoomClosed) sealed()        {}
func (Message) sealed()           {}
func (PositionUpdate) sealed()    {}
func (CompetitionResult) sealed() {}
func (LeaderboardUpdate) sealed() {}

// ErrUnknownKind is returned by Decode for event types outside the closed set.
var ErrUnknownKind = errors.New("unknown event type")

// Decode converts raw event data into the record for kind.
//
// Postcondition: returns ErrUnknownKind (wrapped) for unrecognized kinds and a
// decode error for malformed data; never panics.
func Decode(kind Kind, data string) (Event, error) {
	switch kind {
	case KindRoomJoined:
		return decodeAs[RoomJoined](data)
	case KindRoomLeft:
		return decodeAs[RoomLeft](data)
	case KindActorJoined:
		return decodeAs[ActorJoined](data)
	case KindActorLeft:
		return decodeAs[ActorLeft](data)
	case KindRoomClosed:
		return decodeAs[RoomClosed](data)
	case KindMessage:
		return decodeAs[Message](data)
	case KindPositionUpdate:
		return decodeAs[PositionUpdate](data)
	case KindCompetitionResult:
		return decodeAs[CompetitionResult](data)
	case KindLeaderboardUpdate:
		return decodeAs[LeaderboardUpdate](data)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownKind, int(kind))
	}
}

func decodeAs[E Event](data string) (Event, error) {
	var e E
	if data == "" {
		return nil, fmt.Errorf("decoding %s: empty event data", e.Kind())
	}
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", e.Kind(), err)
	}
	return e, nil
}

// Encode renders ev as an Envelope with a success code. Transports and test
// fixtures use it to produce pushed events.
func Encode(ev Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", ev.Kind(), err)
	}
	return Envelope{ReturnCode: result.CodeSuccess, EventType: int(ev.Kind()), EventData: string(data)}, nil
}
