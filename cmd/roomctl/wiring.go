package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/roomlink/internal/bridge"
	"github.com/cory-johannsen/roomlink/internal/config"
	"github.com/cory-johannsen/roomlink/internal/observability"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/scripting"
	"github.com/cory-johannsen/roomlink/internal/services"
	"github.com/cory-johannsen/roomlink/internal/session"
	"github.com/cory-johannsen/roomlink/internal/transport/grpcconn"
	"github.com/cory-johannsen/roomlink/internal/transport/loopback"
	"github.com/cory-johannsen/roomlink/internal/transport/wsconn"
)

// demoRooms seed the in-memory service used by the loopback transport and by
// serve --demo.
func demoRooms() []room.Record {
	return []room.Record{
		{ID: "lobby", Name: "Lobby", CurrentPlayers: 2, MaxPlayers: 8},
		{ID: "arena-1", Name: "Arena One", CurrentPlayers: 5, MaxPlayers: 6},
		{ID: "ghost", Name: "Ghost", CurrentPlayers: 0, MaxPlayers: 4},
		{ID: "packed", Name: "Packed House", CurrentPlayers: 4, MaxPlayers: 4},
	}
}

// client bundles everything a client-side command needs and releases it in
// Close.
type client struct {
	transport services.Transport
	services  *services.Client
	metrics   *observability.Metrics
	score     *scripting.ScoreScript
}

// dialTransport connects the configured transport.
func dialTransport(ctx context.Context, c config.Config, logger *zap.Logger) (services.Transport, error) {
	switch c.Transport.Kind {
	case config.TransportWebsocket:
		dctx := ctx
		if c.Transport.DialTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, c.Transport.DialTimeout)
			defer cancel()
		}
		conn, err := wsconn.Dial(dctx, c.Transport.URL, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case config.TransportGRPC:
		conn, err := grpcconn.Dial(c.Transport.GRPCAddr(), logger,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case config.TransportLoopback:
		svc := loopback.NewService(logger.Named("loopback"))
		svc.Seed(demoRooms()...)
		return loopback.New(svc), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", c.Transport.Kind)
	}
}

// newClient wires the transport, bridge, metrics and optional score script.
func newClient(ctx context.Context, c config.Config, logger *zap.Logger) (*client, error) {
	t, err := dialTransport(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting %s transport: %w", c.Transport.Kind, err)
	}
	out := &client{transport: t}

	var opts []bridge.Option
	if c.Metrics.Enabled {
		out.metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		opts = append(opts, bridge.WithObserver(out.metrics))
	}
	b := bridge.New(logger.Named("bridge"), opts...)
	out.services = services.NewClient(b, t, logger.Named("services"))

	if c.Scoring.ScriptPath != "" {
		s, err := scripting.LoadScoreScript(c.Scoring.ScriptPath, c.Scoring.InstructionLimit, logger.Named("scoring"))
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		out.score = s
	}
	return out, nil
}

// bonus returns the scripted score bonus, or nil when no script is loaded.
func (c *client) bonus() room.BonusFunc {
	if c.score == nil {
		return nil
	}
	return c.score.Bonus
}

// newSession builds a Session over the client's services.
func (c *client) newSession(cfg config.Config, logger *zap.Logger) (*session.Session, error) {
	deps := session.Deps{
		Base:      c.services,
		Connector: c.services,
		Realtime:  c.services.Realtime(),
		Timeouts:  cfg.Timeouts,
		AppID:     cfg.Service.AppID,
		Bonus:     c.bonus(),
		Logger:    logger.Named("session"),
	}
	if c.metrics != nil {
		deps.Observer = c.metrics
	}
	return session.New("", deps)
}

// Close releases the score script and the transport.
func (c *client) Close() error {
	if c.score != nil {
		c.score.Close()
	}
	return c.transport.Close()
}
