package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/persona"
)

const testBase = "https://hogflix.test"

var testStart = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

type harness struct {
	sim       *browser.Sim
	page      *browser.SimPage
	sink      *events.MemoryTransport
	clock     *core.FakeClock
	reporter  *core.RecordingReporter
	session   *Session
	releasedN int
}

func newHarness(t *testing.T, policy Policy, seed int64, opts ...browser.SimOption) *harness {
	t.Helper()
	sim, err := browser.NewSim(catalog.Default(), testBase, opts...)
	require.NoError(t, err)
	page, err := sim.Open(context.Background(), persona.DevicePalette[0], nil)
	require.NoError(t, err)

	h := &harness{
		sim:      sim,
		page:     page.(*browser.SimPage),
		sink:     &events.MemoryTransport{},
		clock:    core.NewFakeClock(testStart),
		reporter: &core.RecordingReporter{},
	}
	rng := core.NewRand(seed)
	client := events.NewClient(h.sink, events.ClientConfig{APIKey: "phc_test", BaseURL: testBase, BatchSize: 1}, events.WithClock(h.clock))
	h.session = NewSession(SessionConfig{
		DistinctID: "persona-1",
		PersonaID:  "persona-1",
		Traits: persona.Traits{
			Archetype: "binge_watcher", PlanTier: "free",
			UTMSource: "newsletter", UTMMedium: "email", UTMCampaign: "weekly_picks",
			Email: "hog+persona1@hogflix.test",
		},
		Locale:   "en-US",
		BaseURL:  testBase,
		Page:     page,
		Events:   client,
		Rand:     rng,
		Clock:    h.clock,
		Policy:   policy,
		Reporter: h.reporter,
		Release: func(context.Context) error {
			h.releasedN++
			return page.Close()
		},
	})
	return h
}

func (h *harness) goTo(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, h.page.Navigate(context.Background(), testBase+path))
}

func countNames(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}
