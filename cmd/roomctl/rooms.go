package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/roomlink/internal/room"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List available rooms with their viability and join score",
	Long: `Connects to the matchmaking service, lists the available rooms and
prints each one with the reason it would be skipped, or its join score and
rank when it is viable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.Matchmaking+cfg.Timeouts.ListRooms)
		defer cancel()

		c, err := newClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if r := c.services.Initialize(ctx); !r.IsSuccess() {
			return fmt.Errorf("initializing base service: %w", r.Err())
		}
		mm := c.services.Connect(ctx, cfg.Service.AppID)
		if !mm.IsSuccess() {
			return fmt.Errorf("connecting matchmaking: %w", mm.Err())
		}
		listed := mm.Data().GetAvailableRooms(ctx)
		if !listed.IsSuccess() {
			return fmt.Errorf("listing rooms: %w", listed.Err())
		}
		return printRooms(cmd.OutOrStdout(), listed.Data(), room.Rank(listed.Data(), room.NewMemoryOwnedStore(), c.bonus()))
	},
}

// printRooms writes one row per listed room in listing order. Viable rooms
// show their score and join rank.
func printRooms(w io.Writer, listed []room.Record, ranked []room.Candidate) error {
	rank := make(map[string]room.Candidate, len(ranked))
	order := make(map[string]int, len(ranked))
	for i, c := range ranked {
		rank[c.ID] = c
		order[c.ID] = i + 1
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tNAME\tPLAYERS\tSTATUS\tSCORE")
	for _, r := range listed {
		players := fmt.Sprintf("%d/%d", r.CurrentPlayers, r.MaxPlayers)
		c, ok := rank[r.ID]
		if !ok {
			fmt.Fprintf(tw, "-\t%s\t%s\t%s\tskip:%s\t-\n", r.ID, r.Name, players, room.Check(r))
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\tviable\t%d\n", order[r.ID], r.ID, r.Name, players, c.Score)
	}
	return tw.Flush()
}
