package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"hogsim/internal/backfill"
	"hogsim/internal/config"
	"hogsim/internal/core"
	"hogsim/internal/events"
)

func init() {
	rootCmd.AddCommand(backfillCmd)
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Emit historical activity for a date range",
	Long: `Generate a persona pool and emit plausible daily activity for every UTC
day between BACKFILL_START and BACKFILL_END, without a browser.

Examples:
  # Preview a week of history
  BACKFILL_START=2024-05-01 BACKFILL_END=2024-05-07 hogsim backfill --dry-run`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, _ []string) (err error) {
	a, err := newApp(config.ModeBackfill)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	ctx := cmd.Context()
	start, end, err := a.cfg.BackfillRange()
	if err != nil {
		return err
	}
	clock := core.RealClock{}
	client, err := a.eventClient(ctx, clock, a.replayableIDs()...)
	if err != nil {
		return err
	}

	em, err := backfill.New(client, backfill.Config{
		Policy:     a.policy.Backfill,
		Catalog:    a.catalog,
		Rand:       a.rand(),
		Clock:      clock,
		Logger:     a.log,
		PauseEvery: a.cfg.BackfillPauseEvery,
	})
	if err != nil {
		return err
	}

	sum, runErr := em.Run(ctx, start, end, a.cfg.BackfillPersonas, a.cfg.BackfillAvgEvents)
	if err := client.Flush(ctx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := writeBackfill(os.Stdout, sum, client.Stats()); err != nil {
		return err
	}
	return runErr
}

func writeBackfill(w io.Writer, sum backfill.Summary, stats events.Stats) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			backfill.Summary
			Events events.Stats `json:"events"`
		}{sum, stats})
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "HogSim - Backfill Report")
	fmt.Fprintln(w, "========================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Days:         %d\n", sum.Days)
	fmt.Fprintf(w, "Personas:     %d (persona-days %d, active %d)\n", sum.Personas, sum.PersonaDays, sum.ActiveDays)
	fmt.Fprintf(w, "Events:       planned %d  emitted %d  rejected %d  future %d\n", sum.Planned, sum.Emitted, sum.Rejected, sum.Future)
	fmt.Fprintf(w, "Delivery:     sent %d  failed %d\n", stats.Sent, stats.Failed)
	fmt.Fprintf(w, "Pauses:       %d\n", sum.Pauses)
	return nil
}
