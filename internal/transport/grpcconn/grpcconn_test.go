package grpcconn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cory-johannsen/roomlink/internal/bridge"
	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/services"
	"github.com/cory-johannsen/roomlink/internal/transport"
	"github.com/cory-johannsen/roomlink/internal/transport/grpcconn"
	"github.com/cory-johannsen/roomlink/internal/transport/loopback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, h transport.Handler) *grpcconn.Conn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	grpcconn.Register(srv, h, zap.NewNop())
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpcconn.Dial("passthrough:///bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return conn
}

func TestConn_EndToEndThroughServices(t *testing.T) {
	svc := loopback.NewService(zap.NewNop())
	svc.Seed(room.Record{ID: "arena", Name: "Arena", CurrentPlayers: 1, MaxPlayers: 4})
	conn := startServer(t, svc)

	client := services.NewClient(bridge.New(zap.NewNop()), conn, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.True(t, client.Initialize(ctx).IsSuccess())
	mmr := client.Connect(ctx, "arena")
	require.True(t, mmr.IsSuccess(), mmr.ErrorMessage())
	mm := mmr.Data()
	require.True(t, mm.SetActor(ctx, room.Actor{ID: "a1", Name: "Rook"}).IsSuccess())

	joinedEvents := make(chan events.Envelope, 1)
	_, err := mm.RegisterNetworkEventListener(events.KindRoomJoined, func(env events.Envelope) { joinedEvents <- env })
	require.NoError(t, err)

	joined := mm.JoinRoom(ctx, "arena")
	require.True(t, joined.IsSuccess(), joined.ErrorMessage())
	assert.Equal(t, "Arena", joined.Data().Name)

	select {
	case env := <-joinedEvents:
		ev, err := events.Decode(events.Kind(env.EventType), env.EventData)
		require.NoError(t, err)
		assert.Equal(t, "arena", ev.(events.RoomJoined).RoomID)
	case <-time.After(5 * time.Second):
		t.Fatal("room joined event not delivered over gRPC")
	}

	rt := client.Realtime().Initialize(ctx, mm.ClientID(), "arena")
	require.True(t, rt.IsSuccess(), rt.ErrorMessage())
	msgs := make(chan events.Envelope, 1)
	id, err := rt.Data().RegisterNetworkEventListener(events.KindMessage, func(env events.Envelope) { msgs <- env })
	require.NoError(t, err)
	require.True(t, rt.Data().Send(ctx, "glhf").IsSuccess())
	select {
	case env := <-msgs:
		assert.Equal(t, int(events.KindMessage), env.EventType)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered over gRPC")
	}
	require.NoError(t, rt.Data().UnregisterNetworkEventListener(id))
}

func TestConn_RemoteFailureCodePreserved(t *testing.T) {
	svc := loopback.NewService(zap.NewNop())
	svc.SetFault(transport.MethodBaseInitialize, transport.Errorf(result.CodeUnauthorized, "login first"))
	conn := startServer(t, svc)
	client := services.NewClient(bridge.New(zap.NewNop()), conn, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := client.Initialize(ctx)
	assert.False(t, r.IsSuccess())
	assert.Equal(t, result.CodeUnauthorized, r.Code())
	assert.Equal(t, "login first", r.ErrorMessage())
	assert.False(t, client.Initialized())
}

func TestConn_NonObjectArgsRejectedSynchronously(t *testing.T) {
	conn := startServer(t, loopback.NewService(zap.NewNop()))
	err := conn.Call(1, transport.MethodBaseInitialize, []int{1, 2}, func(string) {})
	assert.Error(t, err)
}

func TestConn_CloseIsIdempotentAndRejectsCalls(t *testing.T) {
	conn := startServer(t, loopback.NewService(zap.NewNop()))
	_, err := conn.Listen("matchmaking/x", int(events.KindRoomJoined), func(events.Envelope) {})
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Call(1, transport.MethodBaseInitialize, struct{}{}, func(string) {}), grpcconn.ErrClosed)
}
