package backfill

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
)

var (
	rangeStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	afterRange = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func newEmitter(t *testing.T, tr events.Transport, clock core.Clock, seed int64) *Emitter {
	t.Helper()
	client := events.NewClient(tr, events.ClientConfig{BaseURL: "https://hogflix.test", BatchSize: 50}, events.WithClock(clock))
	e, err := New(client, Config{
		Policy: DefaultPolicy(),
		Rand:   core.NewRand(seed),
		Clock:  clock,
	})
	require.NoError(t, err)
	return e
}

func dayKey(r events.Record) string {
	return r.DistinctID + "/" + r.At.Format(time.DateOnly)
}

func TestRun_CausalOrderingWithinRange(t *testing.T) {
	sink := &events.MemoryTransport{}
	e := newEmitter(t, sink, core.NewFakeClock(afterRange), 11)

	sum, err := e.Run(context.Background(), rangeStart, rangeEnd, 30, 12)
	require.NoError(t, err)
	require.Positive(t, sum.Emitted)
	assert.Equal(t, 14, sum.Days)
	assert.Equal(t, 0, sum.Future)

	records := sink.Records()
	require.Len(t, records, sum.Emitted)

	last := map[string]time.Time{}
	upper := rangeEnd.Add(24 * time.Hour)
	for _, r := range records {
		assert.False(t, r.At.Before(rangeStart), "event %s at %s before range", r.Event, r.At)
		assert.True(t, r.At.Before(upper), "event %s at %s after range", r.Event, r.At)
		assert.Equal(t, true, r.Properties[events.SyntheticProperty])
		assert.Equal(t, true, r.Properties["backfill"])

		k := dayKey(r)
		if prev, ok := last[k]; ok {
			assert.False(t, r.At.Before(prev), "%s: %s emitted after %s", k, r.At, prev)
		}
		last[k] = r.At
	}
}

func TestRun_DayStartsWithPageviewAndBrowse(t *testing.T) {
	sink := &events.MemoryTransport{}
	e := newEmitter(t, sink, core.NewFakeClock(afterRange), 5)
	_, err := e.Run(context.Background(), rangeStart, rangeStart, 10, 12)
	require.NoError(t, err)

	byDay := map[string][]events.Record{}
	var order []string
	for _, r := range sink.Records() {
		k := dayKey(r)
		if _, ok := byDay[k]; !ok {
			order = append(order, k)
		}
		byDay[k] = append(byDay[k], r)
	}
	require.NotEmpty(t, order)
	for _, k := range order {
		day := byDay[k]
		require.GreaterOrEqual(t, len(day), 3, k)
		assert.Equal(t, events.Pageview, day[0].Event)
		assert.Equal(t, events.BrowseCatalog, day[1].Event)
		assert.Equal(t, events.TitleOpened, day[2].Event)
		hour := day[0].At.Hour()
		assert.True(t, hour >= 7 && hour < 11, "pageview hour %d", hour)
	}
}

func TestRun_NeverEmitsFutureEvents(t *testing.T) {
	now := time.Date(2024, 3, 7, 15, 30, 0, 0, time.UTC)
	sink := &events.MemoryTransport{}
	e := newEmitter(t, sink, core.NewFakeClock(now), 3)

	sum, err := e.Run(context.Background(), rangeStart, rangeEnd, 20, 12)
	require.NoError(t, err)
	assert.Positive(t, sum.Future)
	for _, r := range sink.Records() {
		assert.False(t, r.At.After(now), "event %s at %s is in the future", r.Event, r.At)
	}
}

func TestRun_DryRunMatchesLivePayloads(t *testing.T) {
	live := &events.MemoryTransport{}
	_, err := newEmitter(t, live, core.NewFakeClock(afterRange), 99).Run(context.Background(), rangeStart, rangeEnd, 15, 10)
	require.NoError(t, err)

	log := logging.NewTestLogger()
	dry := events.NewDryRunTransport(log.Logger)
	_, err = newEmitter(t, dry, core.NewFakeClock(afterRange), 99).Run(context.Background(), rangeStart, rangeEnd, 15, 10)
	require.NoError(t, err)

	entries := log.FilterMessage("dry run event").All()
	want := live.Records()
	require.Len(t, entries, len(want))
	for i, entry := range entries {
		got, ok := entry.ContextMap()["payload"].(events.Record)
		require.True(t, ok)
		assert.Equal(t, want[i], got, "record %d", i)
	}
}

func TestRun_PausesPeriodically(t *testing.T) {
	clock := core.NewFakeClock(afterRange)
	client := events.NewClient(&events.MemoryTransport{}, events.ClientConfig{}, events.WithClock(clock))
	e, err := New(client, Config{Policy: DefaultPolicy(), Rand: core.NewRand(8), Clock: clock, PauseEvery: 10})
	require.NoError(t, err)

	sum, err := e.Run(context.Background(), rangeStart, rangeEnd, 20, 12)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sum.Emitted, 10)

	sleeps := clock.Sleeps()
	assert.Len(t, sleeps, sum.Emitted/10)
	assert.Equal(t, sum.Pauses, len(sleeps))
	for _, d := range sleeps {
		assert.Equal(t, DefaultPolicy().PauseFor, d)
	}
}

func TestRun_Cancelled(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, rangeStart, rangeEnd, 5, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_RejectsBadArguments(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 1)
	_, err := e.Run(context.Background(), rangeEnd, rangeStart, 5, 10)
	assert.Error(t, err)
	_, err = e.Run(context.Background(), rangeStart, rangeEnd, 0, 10)
	assert.Error(t, err)
}

func TestRun_TransportFailureIsNotFatal(t *testing.T) {
	sink := &events.MemoryTransport{Err: assert.AnError}
	e := newEmitter(t, sink, core.NewFakeClock(afterRange), 2)
	sum, err := e.Run(context.Background(), rangeStart, rangeStart.AddDate(0, 0, 2), 10, 8)
	require.NoError(t, err)
	assert.Positive(t, sum.Emitted)
	assert.Empty(t, sink.Records())
}

func TestActivity(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 1)
	p := DefaultPolicy()

	assert.InDelta(t, p.Base, e.Activity(0, false), 1e-9)
	assert.InDelta(t, p.Base+p.WeeklyBoost, e.Activity(0, true), 1e-9)
	assert.Less(t, e.Activity(30, false), e.Activity(0, false))
	assert.Equal(t, p.Floor, e.Activity(10000, false))

	e.policy.Base = 0.95
	assert.Equal(t, 1.0, e.Activity(0, true))
}

func TestTitlesPerDay_ScalesWithAverage(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 1)
	assert.Equal(t, 1, e.titlesPerDay(0))
	assert.Less(t, e.titlesPerDay(8), e.titlesPerDay(30))
	assert.Equal(t, maxTitlesPerDay, e.titlesPerDay(1000))
}

func TestPlanDay_WatchProgressionOrdered(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 4)
	e.policy.WatchProb = 1
	e.policy.ContinueProb = 1
	e.policy.CompleteProb = 1
	p := persona.Seed(persona.SeedOptions{Count: 1, Now: rangeStart, Rand: core.NewRand(1)})[0]

	plan := e.PlanDay(p, rangeStart, 2)
	require.True(t, sort.SliceIsSorted(plan, func(i, j int) bool {
		return plan[i].Timestamp.Before(plan[j].Timestamp)
	}))

	var progress []int
	for _, ev := range plan {
		if ev.Name == events.VideoProgress {
			progress = append(progress, ev.Properties["progress"].(int))
		}
	}
	titles := 0
	for _, ev := range plan {
		if ev.Name == events.TitleOpened {
			titles++
		}
	}
	assert.Len(t, progress, titles*len(DefaultPolicy().Checkpoints))
	assert.Equal(t, 10, progress[0])
	assert.Equal(t, 90, progress[3])
}

func TestSample_DistinctAndSized(t *testing.T) {
	e := newEmitter(t, &events.MemoryTransport{}, core.NewFakeClock(afterRange), 4)
	idx := e.sample(10)
	assert.Len(t, idx, 6)
	seen := map[int]bool{}
	for _, i := range idx {
		assert.False(t, seen[i])
		seen[i] = true
	}
}

func TestWindowsAreOrdered(t *testing.T) {
	ws := []Window{PageviewWindow, BrowseWindow, TitleWindow, WatchWindow, SearchWindow, LateWindow}
	for i := 1; i < len(ws); i++ {
		assert.GreaterOrEqual(t, ws[i].From, ws[i-1].To)
	}
	assert.Equal(t, 24, LateWindow.To)
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.PoolFraction = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.WatchProb = 1.5
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Checkpoints = []int{30, 10}
	assert.Error(t, p.Validate())
}
