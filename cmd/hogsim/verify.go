package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hogsim/internal/browser"
	"hogsim/internal/collector"
	"hogsim/internal/config"
	"hogsim/internal/core"
	"hogsim/internal/verify"
)

var (
	verifyScenarios []string
	verifySink      bool
	verifyChrome    bool
)

func init() {
	verifyCmd.Flags().StringSliceVar(&verifyScenarios, "scenario", nil, "scenarios to verify (default all)")
	verifyCmd.Flags().BoolVar(&verifySink, "sink", false, "send events to the configured sink instead of memory")
	verifyCmd.Flags().BoolVar(&verifyChrome, "chrome", false, "drive Chrome against HOGFLIX_BASE_URL instead of the simulated site")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run every scenario once and check that events come out",
	Long: `Run each scenario once for a fresh persona. Exits 3 when no event was
delivered and 1 when any scenario or delivery failed.

Examples:
  # Offline check of every scenario
  hogsim verify

  # End-to-end against a local capture server
  POSTHOG_HOST=http://localhost:8010 POSTHOG_API_KEY=dev hogsim verify --sink`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, _ []string) (err error) {
	mode := config.ModeVerify
	if verifySink {
		mode = config.ModeRun
	}
	a, err := newApp(mode)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()
	ctx := cmd.Context()

	// The simulated site needs no real waiting.
	var clock core.Clock = core.NewFakeClock(core.RealClock{}.Now())
	vc := verify.Config{
		Behavior:  &a.policy.Behavior,
		Catalog:   a.catalog,
		BaseURL:   a.cfg.BaseURL,
		Scenarios: verifyScenarios,
		Seed:      a.cfg.Seed,
		Logger:    a.log,
	}
	if verifyChrome {
		clock = core.RealClock{}
		vc.Driver = browser.NewChrome(browser.ChromeConfig{ExecPath: a.cfg.ChromePath, Headless: a.cfg.Headless, Logger: a.log})
	}
	vc.Clock = clock
	if verifySink {
		client, err := a.eventClient(ctx, clock)
		if err != nil {
			return err
		}
		vc.Events = client
	}

	report, err := verify.Run(ctx, vc)
	if err != nil {
		return err
	}
	if err := writeVerify(os.Stdout, report); err != nil {
		return err
	}
	return report.Err()
}

func writeVerify(w io.Writer, r verify.Report) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "HogSim - Verification")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w, "")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tEVENTS\tDURATION\tERROR")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", res.Scenario, res.Status, res.Emitted, collector.FormatDuration(res.Duration), res.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Events: attempted %d  sent %d  failed %d  invalid %d\n",
		r.Events.Attempted, r.Events.Sent, r.Events.Failed, r.Events.Invalid)
	return nil
}
