package loopback

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func call(t *testing.T, s *Service, method string, args any) transport.Reply {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return s.Handle(context.Background(), method, raw)
}

func connectActor(t *testing.T, s *Service, actorID string) string {
	t.Helper()
	r := call(t, s, transport.MethodConnect, transport.ConnectRequest{AppID: "arena"})
	require.Equal(t, result.CodeSuccess, r.Code, r.Message)
	var resp transport.ConnectResponse
	require.NoError(t, json.Unmarshal([]byte(r.Payload), &resp))
	r = call(t, s, transport.MethodSetActor, transport.SetActorRequest{ClientID: resp.ClientID, Actor: room.Actor{ID: actorID}})
	require.Equal(t, result.CodeSuccess, r.Code, r.Message)
	return resp.ClientID
}

func TestService_JoinPublishesMembershipEvents(t *testing.T) {
	s := NewService(zap.NewNop())
	owner := connectActor(t, s, "owner")
	guest := connectActor(t, s, "guest")

	r := call(t, s, transport.MethodCreateRoom, transport.CreateRoomRequest{ClientID: owner, Spec: room.Spec{Name: "Den", MaxPlayers: 2}})
	require.Equal(t, result.CodeSuccess, r.Code)
	var rec room.Record
	require.NoError(t, json.Unmarshal([]byte(r.Payload), &rec))

	var ownerSaw []events.Envelope
	unsub := s.Subscribe(transport.MatchmakingChannel(owner), func(env events.Envelope) { ownerSaw = append(ownerSaw, env) })
	defer unsub()

	r = call(t, s, transport.MethodJoinRoom, transport.JoinRoomRequest{ClientID: guest, RoomID: rec.ID})
	require.Equal(t, result.CodeSuccess, r.Code, r.Message)
	require.Len(t, ownerSaw, 1)
	assert.Equal(t, int(events.KindActorJoined), ownerSaw[0].EventType)

	third := connectActor(t, s, "third")
	r = call(t, s, transport.MethodJoinRoom, transport.JoinRoomRequest{ClientID: third, RoomID: rec.ID})
	assert.Equal(t, result.CodeRoomFull, r.Code)
}

func TestService_CloseRequiresOwner(t *testing.T) {
	s := NewService(zap.NewNop())
	owner := connectActor(t, s, "owner")
	guest := connectActor(t, s, "guest")
	r := call(t, s, transport.MethodCreateRoom, transport.CreateRoomRequest{ClientID: owner, Spec: room.Spec{Name: "Den", MaxPlayers: 4}})
	var rec room.Record
	require.NoError(t, json.Unmarshal([]byte(r.Payload), &rec))
	require.Equal(t, result.CodeSuccess, call(t, s, transport.MethodJoinRoom, transport.JoinRoomRequest{ClientID: guest, RoomID: rec.ID}).Code)

	assert.Equal(t, result.CodeUnauthorized, call(t, s, transport.MethodCloseRoom, transport.ClientRequest{ClientID: guest}).Code)
	assert.Equal(t, result.CodeSuccess, call(t, s, transport.MethodCloseRoom, transport.ClientRequest{ClientID: owner}).Code)
	assert.Empty(t, s.Rooms())
}

func TestService_LastLeaveRemovesRoom(t *testing.T) {
	s := NewService(zap.NewNop())
	owner := connectActor(t, s, "owner")
	call(t, s, transport.MethodCreateRoom, transport.CreateRoomRequest{ClientID: owner, Spec: room.Spec{Name: "Den", MaxPlayers: 4}})
	require.Len(t, s.Rooms(), 1)

	assert.Equal(t, result.CodeSuccess, call(t, s, transport.MethodLeaveRoom, transport.ClientRequest{ClientID: owner}).Code)
	assert.Empty(t, s.Rooms())
	assert.Equal(t, result.CodeNotFound, call(t, s, transport.MethodLeaveRoom, transport.ClientRequest{ClientID: owner}).Code)
	assert.Equal(t, result.CodeNotFound, call(t, s, transport.MethodCloseRoom, transport.ClientRequest{ClientID: owner}).Code)
}

func TestService_UnknownMethodAndBadArgs(t *testing.T) {
	s := NewService(zap.NewNop())
	assert.Equal(t, result.CodeInvalidArgument, s.Handle(context.Background(), "nope", nil).Code)
	assert.Equal(t, result.CodeInvalidArgument, s.Handle(context.Background(), transport.MethodConnect, json.RawMessage(`[`)).Code)
	assert.Equal(t, result.CodeUnauthorized, call(t, s, transport.MethodListRooms, transport.ClientRequest{ClientID: "ghost"}).Code)
}

func TestService_Fault(t *testing.T) {
	s := NewService(zap.NewNop())
	s.SetFault(transport.MethodBaseInitialize, transport.Errorf(result.CodeFailure, "maintenance"))
	assert.Equal(t, result.CodeFailure, call(t, s, transport.MethodBaseInitialize, struct{}{}).Code)
	s.ClearFault(transport.MethodBaseInitialize)
	assert.Equal(t, result.CodeSuccess, call(t, s, transport.MethodBaseInitialize, struct{}{}).Code)
}

func TestTransport_ReplyIsAsyncAndCorrelated(t *testing.T) {
	tr := New(NewService(zap.NewNop()), WithLatency(5*time.Millisecond))
	defer tr.Close()

	got := make(chan string, 1)
	require.NoError(t, tr.Call(42, transport.MethodBaseInitialize, struct{}{}, func(raw string) { got <- raw }))

	select {
	case raw := <-got:
		var env result.Envelope
		require.NoError(t, json.Unmarshal([]byte(raw), &env))
		assert.Equal(t, int64(42), env.CallID)
		assert.True(t, env.OK())
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestTransport_CloseDropsPendingReplies(t *testing.T) {
	tr := New(NewService(zap.NewNop()), WithLatency(time.Hour))
	called := false
	require.NoError(t, tr.Call(1, transport.MethodBaseInitialize, struct{}{}, func(string) { called = true }))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, called)
	assert.ErrorIs(t, tr.Call(2, transport.MethodBaseInitialize, struct{}{}, func(string) {}), ErrClosed)
}

func TestTransport_ListenFiltersByType(t *testing.T) {
	s := NewService(zap.NewNop())
	tr := New(s)
	defer tr.Close()

	var msgs, positions int
	_, err := tr.Listen("realtime/r1", int(events.KindMessage), func(events.Envelope) { msgs++ })
	require.NoError(t, err)
	posID, err := tr.Listen("realtime/r1", int(events.KindPositionUpdate), func(events.Envelope) { positions++ })
	require.NoError(t, err)

	s.Publish("realtime/r1", events.Message{Body: "hi"})
	s.Publish("realtime/r2", events.Message{Body: "elsewhere"})
	assert.Equal(t, 1, msgs)
	assert.Equal(t, 0, positions)

	require.NoError(t, tr.Unlisten(posID))
	require.NoError(t, tr.Unlisten("unknown"))
	s.Publish("realtime/r1", events.PositionUpdate{X: 1})
	assert.Equal(t, 0, positions)
}
