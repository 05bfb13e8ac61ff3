package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/bridge"
	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/services"
	"github.com/cory-johannsen/roomlink/internal/transport"
	"github.com/cory-johannsen/roomlink/internal/transport/loopback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLoopbackClient(t *testing.T) (*services.Client, *loopback.Service) {
	t.Helper()
	svc := loopback.NewService(zap.NewNop())
	tr := loopback.New(svc)
	t.Cleanup(func() { _ = tr.Close() })
	return services.NewClient(bridge.New(zap.NewNop()), tr, zap.NewNop()), svc
}

func connect(t *testing.T, c *services.Client) services.Matchmaking {
	t.Helper()
	r := c.Connect(context.Background(), "arena")
	require.True(t, r.IsSuccess(), r.ErrorMessage())
	return r.Data()
}

func TestBaseInitialize_Idempotent(t *testing.T) {
	c, _ := newLoopbackClient(t)
	assert.False(t, c.Initialized())

	r := c.Initialize(context.Background())
	require.True(t, r.IsSuccess(), r.ErrorMessage())
	assert.True(t, c.Initialized())

	again := c.Initialize(context.Background())
	assert.True(t, again.IsSuccess())
	assert.Equal(t, "already initialized", again.Envelope().Message)
}

func TestMatchmaking_JoinCreateLeaveRoundTrip(t *testing.T) {
	c, svc := newLoopbackClient(t)
	svc.Seed(room.Record{ID: "arena", Name: "Arena", CurrentPlayers: 2, MaxPlayers: 4})
	ctx := context.Background()
	mm := connect(t, c)
	assert.NotEmpty(t, mm.ClientID())

	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1", Name: "Rook"}).IsSuccess())

	rooms := mm.GetAvailableRooms(ctx)
	require.True(t, rooms.IsSuccess(), rooms.ErrorMessage())
	require.Len(t, rooms.Data(), 1)

	joined := mm.JoinRoom(ctx, "arena")
	require.True(t, joined.IsSuccess(), joined.ErrorMessage())
	assert.Equal(t, 3, joined.Data().CurrentPlayers)

	left := mm.LeaveRoom(ctx)
	require.True(t, left.IsSuccess(), left.ErrorMessage())

	created := mm.CreateRoom(ctx, room.Spec{Name: "Mine", MaxPlayers: 2})
	require.True(t, created.IsSuccess(), created.ErrorMessage())
	assert.Equal(t, 1, created.Data().CurrentPlayers)

	closed := mm.CloseRoom(ctx)
	require.True(t, closed.IsSuccess(), closed.ErrorMessage())
}

func TestMatchmaking_RemoteFailureCarriesCode(t *testing.T) {
	c, svc := newLoopbackClient(t)
	svc.Seed(room.Record{ID: "full", CurrentPlayers: 2, MaxPlayers: 2})
	ctx := context.Background()
	mm := connect(t, c)
	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1"}).IsSuccess())

	r := mm.JoinRoom(ctx, "full")
	assert.False(t, r.IsSuccess())
	assert.Equal(t, result.CodeRoomFull, r.Code())
	assert.Equal(t, result.KindRemoteFailure, r.Kind())

	r = mm.JoinRoom(ctx, "missing")
	assert.Equal(t, result.CodeNotFound, r.Code())
}

func TestConnect_EmptyAppIDRejectedLocally(t *testing.T) {
	c, _ := newLoopbackClient(t)
	r := c.Connect(context.Background(), "")
	assert.False(t, r.IsSuccess())
	assert.Equal(t, result.CodeInvalidArgument, r.Code())
	assert.Equal(t, result.KindRemoteFailure, r.Kind())
}

func TestMatchmaking_EventsReachListener(t *testing.T) {
	c, _ := newLoopbackClient(t)
	ctx := context.Background()
	mm := connect(t, c)
	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1"}).IsSuccess())

	got := make(chan events.Envelope, 1)
	id, err := mm.RegisterNetworkEventListener(events.KindRoomJoined, func(env events.Envelope) { got <- env })
	require.NoError(t, err)

	require.True(t, mm.CreateRoom(ctx, room.Spec{Name: "Mine", MaxPlayers: 2}).IsSuccess())
	select {
	case env := <-got:
		assert.Equal(t, int(events.KindRoomJoined), env.EventType)
	case <-time.After(time.Second):
		t.Fatal("room joined event not delivered")
	}
	require.NoError(t, mm.UnregisterNetworkEventListener(id))
}

func TestRealtime_SendDeliversMessage(t *testing.T) {
	c, _ := newLoopbackClient(t)
	ctx := context.Background()
	mm := connect(t, c)
	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1"}).IsSuccess())
	created := mm.CreateRoom(ctx, room.Spec{Name: "Mine", MaxPlayers: 2})
	require.True(t, created.IsSuccess())

	rt := c.Realtime().Initialize(ctx, mm.ClientID(), created.Data().ID)
	require.True(t, rt.IsSuccess(), rt.ErrorMessage())

	got := make(chan events.Envelope, 1)
	_, err := rt.Data().RegisterNetworkEventListener(events.KindMessage, func(env events.Envelope) { got <- env })
	require.NoError(t, err)

	require.True(t, rt.Data().Send(ctx, "gg").IsSuccess())
	select {
	case env := <-got:
		ev, err := events.Decode(events.KindMessage, env.EventData)
		require.NoError(t, err)
		assert.Equal(t, "gg", ev.(events.Message).Body)
		assert.Equal(t, "a1", ev.(events.Message).SenderID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRealtime_NotMemberFails(t *testing.T) {
	c, _ := newLoopbackClient(t)
	mm := connect(t, c)
	rt := c.Realtime().Initialize(context.Background(), mm.ClientID(), "elsewhere")
	assert.False(t, rt.IsSuccess())
}

// scriptedTransport answers calls with canned replies keyed by method.
type scriptedTransport struct {
	mu      sync.Mutex
	replies map[string]func(id int64) string
	calls   atomic.Int32
	wg      sync.WaitGroup
}

func (s *scriptedTransport) Call(id int64, method string, args any, cb func(string)) error {
	s.calls.Add(1)
	s.mu.Lock()
	fn, ok := s.replies[method]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cb(fn(id))
	}()
	return nil
}

func (s *scriptedTransport) Listen(string, int, func(events.Envelope)) (string, error) {
	return "l1", nil
}
func (s *scriptedTransport) Unlisten(string) error { return nil }
func (s *scriptedTransport) Close() error          { s.wg.Wait(); return nil }

func envelopeJSON(id int64, code result.Code, payload string) string {
	data, _ := json.Marshal(result.Envelope{CallID: id, ReturnCode: code, Payload: payload})
	return string(data)
}

func TestBaseInitialize_ConcurrentCallersShareOneCall(t *testing.T) {
	release := make(chan struct{})
	tr := &scriptedTransport{replies: map[string]func(int64) string{
		transport.MethodBaseInitialize: func(id int64) string {
			<-release
			return envelopeJSON(id, result.CodeSuccess, "")
		},
	}}
	defer tr.Close()
	c := services.NewClient(bridge.New(zap.NewNop()), tr, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.Initialize(context.Background())
			assert.True(t, r.IsSuccess())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, tr.calls.Load(), int32(8))
	assert.GreaterOrEqual(t, tr.calls.Load(), int32(1))
	assert.True(t, c.Initialized())
}

func TestMatchmaking_UnparseablePayloadKeepsEnvelope(t *testing.T) {
	tr := &scriptedTransport{replies: map[string]func(int64) string{
		transport.MethodConnect: func(id int64) string {
			return envelopeJSON(id, result.CodeSuccess, `{"clientId":"c1"}`)
		},
		transport.MethodListRooms: func(id int64) string {
			return envelopeJSON(id, result.CodeSuccess, `{"rooms": "nope"}`)
		},
	}}
	defer tr.Close()
	c := services.NewClient(bridge.New(zap.NewNop()), tr, zap.NewNop())
	mm := connect(t, c)

	r := mm.GetAvailableRooms(context.Background())
	assert.False(t, r.IsSuccess())
	assert.Equal(t, result.CodeSuccess, r.Code())
	assert.Equal(t, result.KindLocalException, r.Kind())
}

func TestMatchmaking_NoReplyTimesOut(t *testing.T) {
	tr := &scriptedTransport{replies: map[string]func(int64) string{
		transport.MethodConnect: func(id int64) string {
			return envelopeJSON(id, result.CodeSuccess, `{"clientId":"c1"}`)
		},
	}}
	defer tr.Close()
	b := bridge.New(zap.NewNop())
	c := services.NewClient(b, tr, zap.NewNop())
	mm := connect(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := mm.SetActor(ctx, room.Actor{ID: "a1"})
	assert.Equal(t, result.CodeTimeout, r.Code())
	assert.Equal(t, result.KindTimeout, r.Kind())
	assert.Equal(t, 0, b.Pending(), "timed-out call must not stay registered")
}

func TestNewClient_NilDependenciesPanic(t *testing.T) {
	assert.Panics(t, func() { services.NewClient(nil, &scriptedTransport{}, zap.NewNop()) })
}
