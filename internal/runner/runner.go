// Package runner is the Session Runner: it loads the persona population,
// visits every due persona once, reschedules it and persists the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/behavior"
	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/collector"
	"hogsim/internal/coordinator"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
	"hogsim/internal/schedule"
)

const (
	// releaseGrace bounds snapshot and close after a cancelled batch.
	releaseGrace = 15 * time.Second
	saveGrace    = 30 * time.Second
)

// EventSink is the event client as the runner sees it.
type EventSink interface {
	events.Capturer
	Stats() events.Stats
}

// Config wires a Runner. Store, Driver and Events are required.
type Config struct {
	Store    persona.Store
	Seed     persona.SeedOptions
	Schedule *schedule.Policy
	Behavior behavior.Policy
	Driver   browser.Driver
	Events   EventSink
	Catalog  *catalog.Catalog
	Planner  behavior.Planner
	BaseURL  string

	// Scenario forces one scenario for every persona when set.
	Scenario    string
	Concurrency int

	Rand     *core.Rand
	Clock    core.Clock
	Reporter core.Reporter
	Logger   *zap.Logger
}

// Runner executes batches. One Runner may run several batches in sequence.
type Runner struct {
	cfg    Config
	picker *behavior.Picker
	forced *behavior.Scenario
	log    *zap.Logger
}

// New validates cfg and builds a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil || cfg.Driver == nil || cfg.Events == nil {
		return nil, errors.New("runner: store, driver and events are required")
	}
	if cfg.Schedule == nil {
		cfg.Schedule = schedule.DefaultPolicy()
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("runner: schedule policy: %w", err)
	}
	if err := cfg.Behavior.Validate(); err != nil {
		return nil, fmt.Errorf("runner: behavior policy: %w", err)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = core.NewRand(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = core.NullReporter
	}

	r := &Runner{
		cfg:    cfg,
		picker: behavior.NewPicker(cfg.Behavior),
		log:    logging.OrNop(cfg.Logger),
	}
	if cfg.Scenario != "" {
		sc, err := behavior.Lookup(cfg.Scenario, cfg.Behavior)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		r.forced = &sc
	}
	return r, nil
}

// RunBatch loads (or seeds) the population, visits up to maxBatch due
// personas (maxBatch <= 0 means all of them), advances every visited
// persona's schedule and saves the population once. A failing persona never
// aborts the batch. Concurrent invocations against one store are
// last-writer-wins.
func (r *Runner) RunBatch(ctx context.Context, now time.Time, maxBatch int) (collector.Summary, error) {
	var sum collector.Summary

	seed := r.cfg.Seed
	seed.Now = now
	if seed.Rand == nil {
		seed.Rand = r.cfg.Rand
	}
	personas, seeded, err := persona.LoadOrSeed(ctx, r.cfg.Store, seed, r.log)
	if err != nil {
		return sum, fmt.Errorf("loading personas: %w", err)
	}
	sum.Personas = len(personas)
	sum.Seeded = seeded

	due, deferred := persona.SelectDue(personas, now, maxBatch)
	sum.Due = len(due) + deferred
	sum.Deferred = deferred
	r.log.Info("batch starting",
		zap.Int("personas", len(personas)),
		zap.Int("due", sum.Due),
		zap.Int("selected", len(due)),
		zap.Int("deferred", deferred),
		zap.Bool("seeded", seeded),
	)

	results := make([]core.Status, len(due))
	errTexts := make([]string, len(due))
	coord := coordinator.NewCoordinator(r.cfg.Concurrency, r.cfg.Reporter)
	for i, p := range due {
		// Each visit gets its own generator, drawn in dispatch order, so a
		// seeded batch is reproducible at any concurrency.
		rng := core.NewRand(r.cfg.Rand.Int63n(math.MaxInt64-1) + 1)
		started := coord.Go(ctx, p.ID, func(ctx context.Context) {
			results[i], errTexts[i] = r.visit(ctx, p, rng)
		})
		if !started {
			results[i] = core.StatusSkipped
		}
	}
	coord.Wait()

	for i, st := range results {
		switch st {
		case core.StatusSucceeded:
			sum.Attempted++
			sum.Succeeded++
		case core.StatusFailed:
			sum.Attempted++
			sum.Failed++
			sum.AddError(due[i].ID, errTexts[i])
		case core.StatusSkipped:
			sum.Skipped++
		default:
			// The job died before Visit produced a status.
			sum.Attempted++
			sum.Failed++
			sum.AddError(due[i].ID, "visit produced no result")
			r.log.Error("visit produced no result", zap.String("persona_id", due[i].ID))
		}
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveGrace)
	defer cancel()
	if err := r.cfg.Events.Flush(flushCtx); err != nil {
		r.log.Warn("final event flush failed", zap.Error(err))
	}
	stats := r.cfg.Events.Stats()
	sum.EventsAttempted = stats.Attempted
	sum.EventsSent = stats.Sent
	sum.EventsFailed = stats.Failed
	sum.EventsInvalid = stats.Invalid

	if err := r.cfg.Store.Save(flushCtx, personas); err != nil {
		return sum, fmt.Errorf("saving personas: %w", err)
	}

	r.log.Info("batch finished",
		zap.Int("attempted", sum.Attempted),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("events_sent", sum.EventsSent),
		zap.Int("events_failed", sum.EventsFailed),
	)
	return sum, ctx.Err()
}

// Visit runs one scenario for p in its own actor context and reschedules
// p. The actor context is released on every exit path; the snapshot taken
// at release becomes p's ActorState for the next visit.
func (r *Runner) Visit(ctx context.Context, p *persona.Persona, rng *core.Rand) core.Status {
	status, _ := r.visit(ctx, p, rng)
	return status
}

func (r *Runner) visit(ctx context.Context, p *persona.Persona, rng *core.Rand) (status core.Status, errText string) {
	clock := r.cfg.Clock
	start := clock.Now()
	sc := r.pick(rng)
	log := r.log.With(zap.String("persona_id", p.ID), zap.String("scenario", sc.Name))

	var emitted int
	defer func() {
		if rec := recover(); rec != nil {
			status = core.StatusFailed
			errText = fmt.Sprintf("panic: %v", rec)
			log.Error("session panicked", zap.Any("panic", rec))
		}
		if status != core.StatusSkipped {
			r.reschedule(p, rng, start)
		}
		r.cfg.Reporter.Report(core.Event{
			ActorID:   p.ID,
			Timestamp: clock.Now(),
			Scenario:  sc.Name,
			Status:    status,
			Duration:  clock.Since(start),
			Error:     errText,
			Emitted:   emitted,
		})
	}()

	if err := ctx.Err(); err != nil {
		return core.StatusSkipped, ""
	}

	// Ephemeral scenarios act as a brand-new visitor: no stored state in,
	// nothing written back.
	state := p.ActorState
	distinct := p.ID
	if sc.Ephemeral {
		state = nil
		distinct = behavior.EphemeralID(rng)
	}

	page, err := r.cfg.Driver.Open(ctx, p.Profile, state)
	if err != nil {
		log.Warn("could not open actor context", zap.Error(err))
		return core.StatusFailed, err.Error()
	}

	var (
		releaseOnce sync.Once
		releaseErr  error
	)
	release := func(ctx context.Context) error {
		releaseOnce.Do(func() {
			if !sc.Ephemeral {
				if snap, err := page.Snapshot(ctx); err != nil {
					log.Warn("actor snapshot failed", zap.Error(err))
				} else {
					p.ActorState = snap
				}
			}
			releaseErr = page.Close()
		})
		return releaseErr
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseGrace)
		defer cancel()
		if err := release(relCtx); err != nil {
			log.Debug("actor release failed", zap.Error(err))
		}
	}()

	session := behavior.NewSession(behavior.SessionConfig{
		DistinctID: distinct,
		PersonaID:  p.ID,
		Traits:     p.Traits,
		Locale:     p.Profile.Locale,
		BaseURL:    r.cfg.BaseURL,
		Page:       page,
		Events:     r.cfg.Events,
		Rand:       rng,
		Clock:      clock,
		Policy:     r.cfg.Behavior,
		Catalog:    r.cfg.Catalog,
		Planner:    r.cfg.Planner,
		Reporter:   r.cfg.Reporter,
		Logger:     r.log,
		Release:    release,
	})
	defer func() { emitted = session.Emitted() }()

	if sc.Run(ctx, session) {
		return core.StatusSucceeded, ""
	}
	return core.StatusFailed, lastError(session.Outcomes())
}

func (r *Runner) pick(rng *core.Rand) behavior.Scenario {
	if r.forced != nil {
		return *r.forced
	}
	return r.picker.Pick(rng)
}

// reschedule advances p even when its visit failed, so a broken persona
// is never retried immediately.
func (r *Runner) reschedule(p *persona.Persona, rng *core.Rand, visitedAt time.Time) {
	p.LastVisitAt = visitedAt
	p.Visits++
	p.NextVisitAt = r.cfg.Schedule.NextVisitAt(rng, r.cfg.Clock.Now())
}

func lastError(outcomes []behavior.Outcome) string {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Status == core.StatusFailed && outcomes[i].Err != nil {
			return outcomes[i].Err.Error()
		}
	}
	return "scenario stopped early"
}
