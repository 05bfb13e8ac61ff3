package wsconn_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/roomlink/internal/bridge"
	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/services"
	"github.com/cory-johannsen/roomlink/internal/transport"
	"github.com/cory-johannsen/roomlink/internal/transport/loopback"
	"github.com/cory-johannsen/roomlink/internal/transport/wsconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, h http.Handler, logger *zap.Logger) *wsconn.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := wsconn.Dial(ctx, wsURL(srv), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConn_EndToEndThroughServices(t *testing.T) {
	svc := loopback.NewService(zap.NewNop())
	svc.Seed(room.Record{ID: "arena", Name: "Arena", CurrentPlayers: 2, MaxPlayers: 4})
	conn := dial(t, wsconn.NewServer(svc, zap.NewNop()), zap.NewNop())

	client := services.NewClient(bridge.New(zap.NewNop()), conn, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.True(t, client.Initialize(ctx).IsSuccess())
	mm := client.Connect(ctx, "arena")
	require.True(t, mm.IsSuccess(), mm.ErrorMessage())
	require.True(t, mm.Data().SetActor(ctx, room.Actor{ID: "a1", Name: "Rook"}).IsSuccess())

	joinedEvents := make(chan events.Envelope, 1)
	_, err := mm.Data().RegisterNetworkEventListener(events.KindRoomJoined, func(env events.Envelope) { joinedEvents <- env })
	require.NoError(t, err)

	rooms := mm.Data().GetAvailableRooms(ctx)
	require.True(t, rooms.IsSuccess(), rooms.ErrorMessage())
	require.Len(t, rooms.Data(), 1)

	joined := mm.Data().JoinRoom(ctx, "arena")
	require.True(t, joined.IsSuccess(), joined.ErrorMessage())
	assert.Equal(t, 3, joined.Data().CurrentPlayers)

	select {
	case env := <-joinedEvents:
		assert.Equal(t, int(events.KindRoomJoined), env.EventType)
	case <-time.After(5 * time.Second):
		t.Fatal("room joined event not delivered over websocket")
	}
}

func TestConn_EventHandlerCanMakeCalls(t *testing.T) {
	svc := loopback.NewService(zap.NewNop())
	svc.Seed(room.Record{ID: "arena", Name: "Arena", CurrentPlayers: 1, MaxPlayers: 4})
	conn := dial(t, wsconn.NewServer(svc, zap.NewNop()), zap.NewNop())

	client := services.NewClient(bridge.New(zap.NewNop()), conn, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.True(t, client.Initialize(ctx).IsSuccess())
	connected := client.Connect(ctx, "arena")
	require.True(t, connected.IsSuccess(), connected.ErrorMessage())
	mm := connected.Data()
	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1", Name: "Rook"}).IsSuccess())

	listed := make(chan result.Result[[]room.Record], 1)
	_, err := mm.RegisterNetworkEventListener(events.KindRoomJoined, func(events.Envelope) {
		lctx, lcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer lcancel()
		listed <- mm.GetAvailableRooms(lctx)
	})
	require.NoError(t, err)

	require.True(t, mm.JoinRoom(ctx, "arena").IsSuccess())

	select {
	case r := <-listed:
		require.True(t, r.IsSuccess(), r.ErrorMessage())
		require.Len(t, r.Data(), 1)
		assert.Equal(t, 2, r.Data()[0].CurrentPlayers)
	case <-ctx.Done():
		t.Fatal("event handler never finished its call")
	}
}

func TestConn_MalformedReplyReachesBridgeAsProtocolViolation(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			var f wsconn.Frame
			if err := wsjson.Read(r.Context(), c, &f); err != nil {
				return
			}
			if f.Type == wsconn.FrameCall {
				_ = wsjson.Write(r.Context(), c, wsconn.Frame{Type: wsconn.FrameReply, CallID: f.CallID, Reply: []byte(`"not an envelope"`)})
			}
		}
	})
	conn := dial(t, h, zap.NewNop())

	core, logs := observer.New(zap.DebugLevel)
	b := bridge.New(zap.New(core))
	client := services.NewClient(b, conn, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r := client.Initialize(ctx)

	assert.Equal(t, result.CodeTimeout, r.Code())
	assert.Equal(t, 1, logs.FilterMessage("bridge callback payload not decodable").Len())
	assert.Equal(t, 0, b.Pending())
}

func TestConn_CallAfterCloseFails(t *testing.T) {
	conn := dial(t, wsconn.NewServer(loopback.NewService(zap.NewNop()), zap.NewNop()), zap.NewNop())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	err := conn.Call(1, transport.MethodBaseInitialize, struct{}{}, func(string) {})
	assert.ErrorIs(t, err, wsconn.ErrClosed)
	_, err = conn.Listen("matchmaking/x", 1, func(events.Envelope) {})
	assert.ErrorIs(t, err, wsconn.ErrClosed)
}

func TestConn_ServerGoneMarksConnClosed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Close(websocket.StatusGoingAway, "restarting")
	})
	conn := dial(t, h, zap.New(core))

	require.Eventually(t, func() bool {
		return conn.Call(1, transport.MethodBaseInitialize, struct{}{}, func(string) {}) != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("wsconn: read loop ended").Len())
}
