// Command hogsim drives synthetic HogFlix traffic: scheduled persona
// batches, historical backfills and a one-shot verification of every
// scenario.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hogsim/internal/verify"
)

const (
	ExitSuccess  = 0
	ExitFailures = 1
	ExitError    = 2
	ExitNoEvents = 3
)

var version = "dev"

var (
	envFiles []string
	output   string
	quiet    bool
	dryRun   bool
)

var rootCmd = &cobra.Command{
	Use:   "hogsim",
	Short: "Synthetic persona traffic for HogFlix",
	Long: `hogsim simulates a population of HogFlix viewers. Each invocation of
"run" visits the personas that are due, drives a real or simulated browser
through a scenario and sends the resulting analytics events.

Configuration is read from the environment (and a .env file when present).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if output != "text" && output != "json" {
			return fmt.Errorf("--output must be 'text' or 'json', got %q", output)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log events instead of sending them (same as DRY_RUN=1)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status. Anything that
// is not a verification verdict is a configuration or startup error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, verify.ErrNoEvents):
		return ExitNoEvents
	case errors.Is(err, verify.ErrFailures):
		return ExitFailures
	default:
		return ExitError
	}
}
