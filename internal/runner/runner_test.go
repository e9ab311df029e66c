package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"hogsim/internal/behavior"
	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/collector"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
	"hogsim/internal/schedule"
)

const testBase = "https://hogflix.test"

var batchTime = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store    *persona.FileStore
	sim      *browser.Sim
	sink     *events.MemoryTransport
	client   *events.Client
	clock    *core.FakeClock
	reporter *core.RecordingReporter
	log      *logging.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim, err := browser.NewSim(catalog.Default(), testBase)
	require.NoError(t, err)
	f := &fixture{
		store:    persona.NewFileStore(filepath.Join(t.TempDir(), "personas.json")),
		sim:      sim,
		sink:     &events.MemoryTransport{},
		clock:    core.NewFakeClock(batchTime),
		reporter: &core.RecordingReporter{},
		log:      logging.NewTestLogger(),
	}
	f.client = events.NewClient(f.sink, events.ClientConfig{APIKey: "phc_test", BaseURL: testBase, BatchSize: 10}, events.WithClock(f.clock))
	return f
}

func (f *fixture) runner(t *testing.T, mutate ...func(*Config)) *Runner {
	t.Helper()
	cfg := Config{
		Store:    f.store,
		Seed:     persona.SeedOptions{Count: 10},
		Behavior: behavior.DefaultPolicy(),
		Driver:   f.sim,
		Events:   f.client,
		BaseURL:  testBase,
		Rand:     core.NewRand(42),
		Clock:    f.clock,
		Reporter: f.reporter,
		Logger:   f.log.Logger,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

// seedDue stores n personas that were all due an hour ago.
func (f *fixture) seedDue(t *testing.T, n int) []persona.Persona {
	t.Helper()
	ps := persona.Seed(persona.SeedOptions{Count: n, Now: batchTime.Add(-48 * time.Hour), Rand: core.NewRand(1)})
	for i := range ps {
		ps[i].NextVisitAt = batchTime.Add(-time.Hour - time.Duration(i)*time.Minute)
	}
	require.NoError(t, f.store.Save(context.Background(), ps))
	return ps
}

func (f *fixture) load(t *testing.T) []persona.Persona {
	t.Helper()
	ps, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return ps
}

func sessionEvents(rec *core.RecordingReporter) []core.Event {
	var out []core.Event
	for _, e := range rec.Events() {
		if e.Step == "" {
			out = append(out, e)
		}
	}
	return out
}

func TestRunBatch_SeedsEmptyStoreWithNobodyDue(t *testing.T) {
	f := newFixture(t)
	sum, err := f.runner(t).RunBatch(context.Background(), batchTime, 25)
	require.NoError(t, err)

	assert.True(t, sum.Seeded)
	assert.Equal(t, 10, sum.Personas)
	assert.Equal(t, 0, sum.Due)
	assert.Equal(t, 0, sum.Attempted)
	assert.Len(t, f.load(t), 10)
	assert.Equal(t, 0, f.sim.Opened())
}

func TestRunBatch_VisitsAndReschedulesDuePersonas(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 5)

	sum, err := f.runner(t).RunBatch(context.Background(), batchTime, 25)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Due)
	assert.Equal(t, 5, sum.Attempted)
	assert.Equal(t, sum.Attempted, sum.Succeeded+sum.Failed)
	assert.Positive(t, sum.EventsSent)
	assert.Equal(t, sum.EventsAttempted, sum.EventsSent)
	assert.Equal(t, 5, f.sim.Opened())
	assert.Equal(t, 5, f.sim.Released())

	lo, hi := schedule.DefaultPolicy().Bounds()
	for _, p := range f.load(t) {
		assert.Equal(t, 1, p.Visits)
		assert.False(t, p.LastVisitAt.Before(batchTime))
		delay := p.NextVisitAt.Sub(batchTime)
		assert.True(t, delay >= lo, "next visit %v too soon", delay)
		assert.True(t, delay <= hi+time.Hour, "next visit %v too late", delay)
	}
	assert.Len(t, sessionEvents(f.reporter), 5)
	f.log.AssertLogged(t, zapcore.InfoLevel, "batch finished")
}

func TestRunBatch_MaxBatchTakesMostOverdue(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedDue(t, 5)

	sum, err := f.runner(t).RunBatch(context.Background(), batchTime, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Due)
	assert.Equal(t, 3, sum.Deferred)
	assert.Equal(t, 2, sum.Attempted)

	visited := map[string]bool{}
	for _, p := range f.load(t) {
		if p.Visits > 0 {
			visited[p.ID] = true
		}
	}
	// seedDue makes later personas more overdue.
	assert.Equal(t, map[string]bool{seeded[4].ID: true, seeded[3].ID: true}, visited)
}

func TestRunBatch_ActorStateCarriesToNextVisit(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 1)
	r := f.runner(t, func(c *Config) { c.Scenario = behavior.ReturningUser })

	_, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)
	after := f.load(t)[0]
	require.NotEmpty(t, after.ActorState)
	assert.False(t, f.sim.Pages()[0].Restored())

	next := after.NextVisitAt.Add(time.Minute)
	f.clock.Set(next)
	sum, err := r.RunBatch(context.Background(), next, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Attempted)
	require.Len(t, f.sim.Pages(), 2)
	assert.True(t, f.sim.Pages()[1].Restored())
	assert.Equal(t, 2, f.load(t)[0].Visits)
}

func TestRunBatch_EphemeralScenarioUsesFreshIdentity(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedDue(t, 2)
	r := f.runner(t, func(c *Config) { c.Scenario = behavior.PricingFunnel })

	_, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)

	ids := map[string]bool{seeded[0].ID: true, seeded[1].ID: true}
	require.NotEmpty(t, f.sink.Records())
	for _, rec := range f.sink.Records() {
		assert.False(t, ids[rec.DistinctID], "ephemeral session emitted as persona %s", rec.DistinctID)
	}
	for _, p := range f.load(t) {
		assert.Empty(t, p.ActorState)
		assert.Equal(t, 1, p.Visits)
	}
}

type failingDriver struct{}

func (failingDriver) Open(context.Context, persona.DeviceProfile, []byte) (browser.Page, error) {
	return nil, errors.New("chrome not found")
}

func TestRunBatch_OpenFailureStillReschedules(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 3)
	r := f.runner(t, func(c *Config) { c.Driver = failingDriver{} })

	sum, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Failed)
	require.Len(t, sum.Errors, 3)
	assert.Contains(t, sum.Errors[0], ": chrome not found")
	for _, p := range f.load(t) {
		assert.True(t, p.NextVisitAt.After(batchTime))
	}
	for _, e := range sessionEvents(f.reporter) {
		assert.Equal(t, core.StatusFailed, e.Status)
		assert.Equal(t, "chrome not found", e.Error)
	}
}

type panicDriver struct{ *browser.Sim }

type panicPage struct{ browser.Page }

func (panicPage) Navigate(context.Context, string) error { panic("renderer crashed") }

func (d panicDriver) Open(ctx context.Context, prof persona.DeviceProfile, state []byte) (browser.Page, error) {
	p, err := d.Sim.Open(ctx, prof, state)
	return panicPage{p}, err
}

func TestRunBatch_PanicIsContainedAndReleased(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 2)
	r := f.runner(t, func(c *Config) {
		c.Driver = panicDriver{f.sim}
		c.Scenario = behavior.ReturningUser
	})

	sum, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.Len(t, sum.Errors, 2)
	assert.Equal(t, 2, f.sim.Released())
	for _, p := range f.load(t) {
		assert.Equal(t, 1, p.Visits)
		assert.True(t, p.NextVisitAt.After(batchTime))
	}
	for _, e := range sessionEvents(f.reporter) {
		assert.Contains(t, e.Error, "renderer crashed")
	}
}

func TestRunBatch_ConcurrentVisits(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 8)
	r := f.runner(t, func(c *Config) { c.Concurrency = 4 })

	sum, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Attempted)
	assert.Equal(t, 8, f.sim.Released())
	for _, p := range f.load(t) {
		assert.Equal(t, 1, p.Visits)
	}
}

// cancelAfterLoad cancels the batch once the population is loaded.
type cancelAfterLoad struct {
	persona.Store
	cancel context.CancelFunc
}

func (s cancelAfterLoad) Load(ctx context.Context) ([]persona.Persona, error) {
	ps, err := s.Store.Load(ctx)
	s.cancel()
	return ps, err
}

func TestRunBatch_CancelledSkipsButSaves(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := f.runner(t, func(c *Config) { c.Store = cancelAfterLoad{f.store, cancel} })

	sum, err := r.RunBatch(ctx, batchTime, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 0, sum.Attempted)
	for _, p := range f.load(t) {
		assert.Equal(t, 0, p.Visits)
	}
}

type brokenSaveStore struct{ persona.Store }

func (brokenSaveStore) Save(context.Context, []persona.Persona) error { return errors.New("disk full") }

func TestRunBatch_SaveErrorReturned(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 1)
	r := f.runner(t, func(c *Config) { c.Store = brokenSaveStore{f.store} })

	sum, err := r.RunBatch(context.Background(), batchTime, 0)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, sum.Attempted)
}

type unreachableStore struct{ persona.Store }

func (unreachableStore) Load(context.Context) ([]persona.Persona, error) {
	return nil, errors.New("connection reset by peer")
}

func TestRunBatch_LoadErrorKeepsPopulation(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 2)
	before := f.load(t)
	r := f.runner(t, func(c *Config) { c.Store = unreachableStore{f.store} })

	_, err := r.RunBatch(context.Background(), batchTime, 0)
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Equal(t, before, f.load(t))
}

func TestRunBatch_ReportsToCollector(t *testing.T) {
	f := newFixture(t)
	f.seedDue(t, 3)
	c := collector.NewCollector(f.clock)
	r := f.runner(t, func(cfg *Config) { cfg.Reporter = c })

	sum, err := r.RunBatch(context.Background(), batchTime, 0)
	require.NoError(t, err)
	c.Close()

	m := c.Compute()
	assert.Equal(t, 3, m.Sessions.Total)
	assert.Equal(t, sum.Succeeded, m.Sessions.Completed)
	assert.Positive(t, m.Actions)
	assert.Positive(t, m.Emitted)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	f := newFixture(t)
	_, err = New(Config{
		Store: f.store, Driver: f.sim, Events: f.client,
		Behavior: behavior.DefaultPolicy(), Scenario: "binge",
	})
	assert.ErrorContains(t, err, "unknown scenario")

	bad := behavior.DefaultPolicy()
	bad.OpenProb = 2
	_, err = New(Config{Store: f.store, Driver: f.sim, Events: f.client, Behavior: bad})
	assert.ErrorContains(t, err, "behavior policy")
}
