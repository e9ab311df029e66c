package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hogsim/internal/collector"
	"hogsim/internal/config"
	"hogsim/internal/core"
	"hogsim/internal/metrics"
	"hogsim/internal/persona"
	"hogsim/internal/progress"
	"hogsim/internal/runner"
)

const pushTimeout = 10 * time.Second

var runScenario string

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "run this scenario for every due persona")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Visit every due persona once",
	Long: `Run one batch: load (or seed) the persona population, visit up to
MAX_BATCH due personas, reschedule them and save the population.

Examples:
  # Simulated site, events logged instead of sent
  BROWSER=sim hogsim run --dry-run

  # Live run against PostHog
  POSTHOG_API_KEY=phc_... hogsim run`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, _ []string) (err error) {
	a, err := newApp(config.ModeRun)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	ctx := cmd.Context()
	clock := core.RealClock{}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	drv, err := a.driver()
	if err != nil {
		return err
	}
	client, err := a.eventClient(ctx, clock)
	if err != nil {
		return err
	}

	coll := collector.NewCollector(clock)
	reg := metrics.New()
	total := a.cfg.MaxBatch
	if total <= 0 {
		total = a.cfg.PersonaCount
	}
	prog := progress.NewProgress(coll, total, quiet || output == "json")

	r, err := runner.New(runner.Config{
		Store: store,
		Seed: persona.SeedOptions{
			Count:  a.cfg.PersonaCount,
			Domain: "hogflix.test",
		},
		Schedule:    &a.policy.Schedule,
		Behavior:    a.policy.Behavior,
		Driver:      drv,
		Events:      client,
		Catalog:     a.catalog,
		BaseURL:     a.cfg.BaseURL,
		Scenario:    runScenario,
		Concurrency: a.cfg.Concurrency,
		Rand:        a.rand(),
		Clock:       clock,
		Reporter:    core.MultiReporter{coll, reg},
		Logger:      a.log,
	})
	if err != nil {
		return err
	}

	prog.Printf("HogSim batch starting: target %s, max batch %d, concurrency %d", a.cfg.BaseURL, a.cfg.MaxBatch, max(a.cfg.Concurrency, 1))
	prog.Start()
	sum, runErr := r.RunBatch(ctx, clock.Now(), a.cfg.MaxBatch)
	prog.Stop()
	coll.Close()

	m := coll.Compute()
	if output == "json" {
		if err := collector.FormatJSON(os.Stdout, sum, m); err != nil {
			return err
		}
	} else {
		collector.FormatText(os.Stdout, sum, m)
	}

	reg.ObserveSummary(sum, clock.Now())
	if a.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := reg.Push(pushCtx, a.cfg.PushgatewayURL); err != nil {
			a.log.Warn("metrics push failed", zap.Error(err))
		}
	}

	// An interrupted batch still saved its progress; that is not an error.
	if errors.Is(runErr, context.Canceled) {
		a.log.Info("batch interrupted")
		return nil
	}
	return runErr
}
