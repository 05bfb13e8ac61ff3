package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/session"
)

var (
	profilePath string
	sendBody    string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join the best room or create one, then print room events",
	Long: `Initializes the services, joins the best viable room (or creates the
room described by the profile), prints every room event until interrupted,
then leaves the room. With --send, a message is sent once the realtime
channel is ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := room.LoadProfile(profilePath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := newClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		sess, err := c.newSession(cfg, logger)
		if err != nil {
			return err
		}
		defer sess.Dispose()

		printEvents(cmd.OutOrStdout(), sess.Events())
		sess.Subscribe()

		if r := sess.InitializeServices(ctx); !r.IsSuccess() {
			return fmt.Errorf("initializing services: %w", r.Err())
		}
		joined := sess.JoinOrCreateRoom(ctx, profile.Actor, profile.Room)
		if !joined.IsSuccess() {
			return fmt.Errorf("joining room: %w", joined.Err())
		}
		rec := joined.Data()
		fmt.Fprintf(cmd.OutOrStdout(), "in room %s (%s) owner=%t players=%d/%d\n",
			rec.ID, rec.Name, sess.IsOwner(), rec.CurrentPlayers, rec.MaxPlayers)

		if sendBody != "" {
			sendWhenReady(ctx, cmd.OutOrStdout(), sess, sendBody, cfg.Timeouts.Realtime)
		}

		<-ctx.Done()
		return leave(sess, cfg.Timeouts.Leave)
	},
}

func init() {
	joinCmd.Flags().StringVar(&profilePath, "profile", "profile.yaml", "YAML file with the actor and the room to create")
	joinCmd.Flags().StringVar(&sendBody, "send", "", "message to send once the realtime channel is ready")
}

func sendWhenReady(ctx context.Context, w io.Writer, sess *session.Session, body string, wait time.Duration) {
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if !sess.WaitRealtime(wctx) {
		fmt.Fprintln(w, "realtime channel unavailable; message not sent")
		return
	}
	if r := sess.SendMessage(ctx, body); !r.IsSuccess() {
		logger.Warn("sending message failed", zap.String("error", r.ErrorMessage()))
	}
}

// leave uses a fresh context since the command context is already done.
func leave(sess *session.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if r := sess.LeaveRoom(ctx); !r.IsSuccess() {
		return fmt.Errorf("leaving room: %w", r.Err())
	}
	return nil
}

// printEvents subscribes a printer for every event kind.
func printEvents(w io.Writer, r *events.Router) {
	events.On(r, func(e events.RoomJoined) { fmt.Fprintf(w, "event room_joined room=%s actor=%s\n", e.RoomID, e.ActorID) })
	events.On(r, func(e events.RoomLeft) { fmt.Fprintf(w, "event room_left room=%s actor=%s\n", e.RoomID, e.ActorID) })
	events.On(r, func(e events.ActorJoined) {
		fmt.Fprintf(w, "event actor_joined room=%s actor=%s name=%s\n", e.RoomID, e.Actor.ID, e.Actor.Name)
	})
	events.On(r, func(e events.ActorLeft) {
		fmt.Fprintf(w, "event actor_left room=%s actor=%s reason=%s\n", e.RoomID, e.ActorID, e.Reason)
	})
	events.On(r, func(e events.RoomClosed) { fmt.Fprintf(w, "event room_closed room=%s reason=%s\n", e.RoomID, e.Reason) })
	events.On(r, func(e events.Message) { fmt.Fprintf(w, "message from=%s: %s\n", e.SenderID, e.Body) })
	events.On(r, func(e events.PositionUpdate) {
		fmt.Fprintf(w, "event position actor=%s x=%.2f y=%.2f\n", e.ActorID, e.X, e.Y)
	})
	events.On(r, func(e events.CompetitionResult) {
		fmt.Fprintf(w, "event competition_result rankings=%d\n", len(e.Rankings))
	})
	events.On(r, func(e events.LeaderboardUpdate) {
		fmt.Fprintf(w, "event leaderboard_update entries=%d\n", len(e.Entries))
	})
}
