// Package verify runs every scenario once and turns the outcome into a
// verdict: an empty result and failed sessions are distinct errors so the
// CLI can map them to distinct exit codes.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/behavior"
	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
	"hogsim/internal/runner"
)

var (
	// ErrNoEvents means the run finished without a single event delivered.
	ErrNoEvents = errors.New("verification produced no events")
	// ErrFailures means at least one session or event delivery failed.
	ErrFailures = errors.New("verification had failures")
)

const flushGrace = 30 * time.Second

// Config wires a verification run. Everything is optional: the zero Config
// runs all scenarios against the simulated site into memory.
type Config struct {
	Driver    browser.Driver
	Events    runner.EventSink
	Behavior  *behavior.Policy
	Catalog   *catalog.Catalog
	BaseURL   string
	Scenarios []string
	Seed      int64
	Clock     core.Clock
	Reporter  core.Reporter
	Logger    *zap.Logger
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario  string        `json:"scenario"`
	PersonaID string        `json:"persona_id"`
	Status    core.Status   `json:"status"`
	Emitted   int           `json:"emitted"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Report is everything a verification run observed.
type Report struct {
	Results []Result        `json:"results"`
	Events  events.Stats    `json:"events"`
	Records []events.Record `json:"-"` // only with the default memory sink
}

// Failed returns the results that did not succeed.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status != core.StatusSucceeded {
			out = append(out, res)
		}
	}
	return out
}

// Err is the verdict. No delivered events wins over failures.
func (r Report) Err() error {
	if r.Events.Sent == 0 {
		return ErrNoEvents
	}
	if failed := r.Failed(); len(failed) > 0 || r.Events.Failed > 0 {
		return fmt.Errorf("%w: %d of %d scenarios, %d events", ErrFailures, len(failed), len(r.Results), r.Events.Failed)
	}
	return nil
}

// Run executes each configured scenario once, for a freshly seeded persona
// each. The returned error covers setup only; use Report.Err for the verdict.
func Run(ctx context.Context, cfg Config) (Report, error) {
	var report Report
	log := logging.OrNop(cfg.Logger)

	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	pol := behavior.DefaultPolicy()
	if cfg.Behavior != nil {
		pol = *cfg.Behavior
	}
	if cfg.Driver == nil {
		sim, err := browser.NewSim(cfg.Catalog, cfg.BaseURL)
		if err != nil {
			return report, fmt.Errorf("simulated site: %w", err)
		}
		cfg.Driver = sim
	}
	var mem *events.MemoryTransport
	if cfg.Events == nil {
		mem = &events.MemoryTransport{}
		cfg.Events = events.NewClient(mem,
			events.ClientConfig{APIKey: "verify", BaseURL: cfg.BaseURL},
			events.WithClock(cfg.Clock), events.WithLogger(log))
	}

	names := cfg.Scenarios
	if len(names) == 0 {
		for _, sc := range behavior.Scenarios(pol) {
			names = append(names, sc.Name)
		}
	}

	rng := core.NewRand(cfg.Seed)
	personas := persona.Seed(persona.SeedOptions{Count: len(names), Now: cfg.Clock.Now(), Rand: rng})

	sessions := &sessionReporter{}
	reporter := core.MultiReporter{sessions}
	if cfg.Reporter != nil {
		reporter = append(reporter, cfg.Reporter)
	}

	for i, name := range names {
		r, err := runner.New(runner.Config{
			Store:    &persona.MemoryStore{},
			Behavior: pol,
			Driver:   cfg.Driver,
			Events:   cfg.Events,
			Catalog:  cfg.Catalog,
			BaseURL:  cfg.BaseURL,
			Scenario: name,
			Clock:    cfg.Clock,
			Reporter: reporter,
			Logger:   log,
		})
		if err != nil {
			return report, err
		}
		if ctx.Err() != nil {
			break
		}
		p := &personas[i]
		status := r.Visit(ctx, p, core.NewRand(cfg.Seed+int64(i)+1))
		res := Result{Scenario: name, PersonaID: p.ID, Status: status}
		if ev, ok := sessions.last(p.ID); ok {
			res.Emitted = ev.Emitted
			res.Duration = ev.Duration
			res.Error = ev.Error
		}
		log.Info("scenario verified",
			zap.String("scenario", name),
			zap.String("status", string(status)),
			zap.Int("emitted", res.Emitted),
		)
		report.Results = append(report.Results, res)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushGrace)
	defer cancel()
	if err := cfg.Events.Flush(flushCtx); err != nil {
		log.Warn("final event flush failed", zap.Error(err))
	}
	report.Events = cfg.Events.Stats()
	if mem != nil {
		report.Records = mem.Records()
	}
	return report, ctx.Err()
}

// sessionReporter keeps the latest session-level event per persona.
type sessionReporter struct {
	mu     sync.Mutex
	byUser map[string]core.Event
}

func (s *sessionReporter) Report(e core.Event) {
	if e.Step != "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUser == nil {
		s.byUser = make(map[string]core.Event)
	}
	s.byUser[e.ActorID] = e
}

func (s *sessionReporter) last(id string) (core.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byUser[id]
	return e, ok
}
