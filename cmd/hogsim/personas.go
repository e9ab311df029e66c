package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hogsim/internal/config"
	"hogsim/internal/persona"
)

var personasLimit int

func init() {
	personasCmd.Flags().IntVar(&personasLimit, "limit", 0, "show at most this many personas (0 = all)")
	rootCmd.AddCommand(personasCmd)
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the stored persona population",
	Long: `Print every stored persona with its archetype, locale and next visit,
soonest first. Nothing is seeded or modified.`,
	Args: cobra.NoArgs,
	RunE: runPersonas,
}

func runPersonas(cmd *cobra.Command, _ []string) (err error) {
	a, err := newApp(config.ModePersonas)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	personas, err := store.Load(cmd.Context())
	if errors.Is(err, persona.ErrStoreNotFound) {
		fmt.Fprintln(os.Stderr, "no persona store yet; the first run seeds one")
		return nil
	}
	if err != nil {
		return err
	}
	return writePersonas(os.Stdout, personas, time.Now())
}

func writePersonas(w io.Writer, personas []persona.Persona, now time.Time) error {
	sorted := append([]persona.Persona(nil), personas...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NextVisitAt.Before(sorted[j].NextVisitAt)
	})
	if personasLimit > 0 && len(sorted) > personasLimit {
		sorted = sorted[:personasLimit]
	}

	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sorted)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tARCHETYPE\tPLAN\tLOCALE\tVIEWPORT\tVISITS\tNEXT VISIT\tDUE")
	for _, p := range sorted {
		due := ""
		if p.Due(now) {
			due = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dx%d\t%d\t%s\t%s\n",
			p.ID, p.Traits.Archetype, p.Traits.PlanTier, p.Profile.Locale, p.Profile.Viewport.Width, p.Profile.Viewport.Height,
			p.Visits, p.NextVisitAt.UTC().Format(time.RFC3339), due)
	}
	return tw.Flush()
}
