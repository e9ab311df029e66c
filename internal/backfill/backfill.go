// Package backfill writes a plausible historical event stream without a
// browser. Every event carries an explicit timestamp inside the requested
// date range.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/catalog"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
)

// DefaultPauseEvery is how many events are emitted between pacing pauses.
const DefaultPauseEvery = 100

const maxTitlesPerDay = 8

// Config wires an Emitter.
type Config struct {
	Policy     Policy
	Catalog    *catalog.Catalog
	Rand       *core.Rand
	Clock      core.Clock
	Logger     *zap.Logger
	PauseEvery int
}

// Summary counts what a backfill produced.
type Summary struct {
	Days        int `json:"days"`
	Personas    int `json:"personas"`
	PersonaDays int `json:"persona_days"`
	ActiveDays  int `json:"active_days"`
	Planned     int `json:"planned"`
	Emitted     int `json:"emitted"`
	Rejected    int `json:"rejected"`
	Future      int `json:"future"`
	Pauses      int `json:"pauses"`
}

// Emitter plans and emits backfill days. Dry runs differ only in the
// transport behind the capturer.
type Emitter struct {
	capturer   events.Capturer
	policy     Policy
	catalog    *catalog.Catalog
	rand       *core.Rand
	clock      core.Clock
	log        *zap.Logger
	pauseEvery int

	emitted int
}

type member struct {
	persona.Persona
	weekday time.Weekday
}

// New creates an Emitter.
func New(c events.Capturer, cfg Config) (*Emitter, error) {
	if c == nil {
		return nil, errors.New("backfill: nil capturer")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("backfill policy: %w", err)
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
	if cfg.PauseEvery <= 0 {
		cfg.PauseEvery = DefaultPauseEvery
	}
	return &Emitter{
		capturer:   c,
		policy:     cfg.Policy,
		catalog:    cfg.Catalog,
		rand:       cfg.Rand,
		clock:      cfg.Clock,
		log:        logging.OrNop(cfg.Logger),
		pauseEvery: cfg.PauseEvery,
	}, nil
}

// Run emits activity for every UTC day in [start, end] for a generated pool
// of personaCount personas. avgEvents sets the rough size of an active day.
func (e *Emitter) Run(ctx context.Context, start, end time.Time, personaCount int, avgEvents float64) (Summary, error) {
	var sum Summary
	first, last := utcDay(start), utcDay(end)
	if last.Before(first) {
		return sum, fmt.Errorf("backfill: end %s before start %s", last.Format(time.DateOnly), first.Format(time.DateOnly))
	}
	if personaCount <= 0 {
		return sum, errors.New("backfill: persona count must be positive")
	}

	pool := e.pool(personaCount, first)
	sum.Personas = len(pool)
	titles := e.titlesPerDay(avgEvents)
	e.log.Info("backfill starting",
		zap.String("start", first.Format(time.DateOnly)),
		zap.String("end", last.Format(time.DateOnly)),
		zap.Int("personas", len(pool)),
		zap.Int("titles_per_day", titles),
	)

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		sum.Days++
		daysIn := int(day.Sub(first).Hours() / 24)
		for _, idx := range e.sample(len(pool)) {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			m := &pool[idx]
			sum.PersonaDays++
			if !e.rand.Chance(e.Activity(daysIn, day.Weekday() == m.weekday)) {
				continue
			}
			sum.ActiveDays++
			plan := e.PlanDay(m.Persona, day, titles)
			sum.Planned += len(plan)
			if err := e.emit(ctx, plan, &sum); err != nil {
				return sum, err
			}
		}
	}

	if err := e.capturer.Flush(ctx); err != nil {
		e.log.Warn("final backfill flush failed", zap.Error(err))
	}
	e.log.Info("backfill finished",
		zap.Int("days", sum.Days),
		zap.Int("active_days", sum.ActiveDays),
		zap.Int("emitted", sum.Emitted),
		zap.Int("future", sum.Future),
	)
	return sum, nil
}

// Activity is the probability a sampled persona is active daysIn days after
// the start of the range.
func (e *Emitter) Activity(daysIn int, preferredDay bool) float64 {
	p := e.policy.Base * math.Exp(-e.policy.Decay*float64(daysIn))
	if preferredDay {
		p += e.policy.WeeklyBoost
	}
	return math.Max(e.policy.Floor, math.Min(1, p))
}

func (e *Emitter) pool(n int, now time.Time) []member {
	seeded := persona.Seed(persona.SeedOptions{Count: n, Now: now, Rand: e.rand})
	pool := make([]member, len(seeded))
	for i, p := range seeded {
		pool[i] = member{Persona: p, weekday: time.Weekday(e.rand.Intn(7))}
	}
	return pool
}

// sample returns ceil(PoolFraction*n) distinct pool indices.
func (e *Emitter) sample(n int) []int {
	k := int(math.Ceil(e.policy.PoolFraction * float64(n)))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k && i < n; i++ {
		j := i + e.rand.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:min(k, n)]
}

// titlesPerDay converts the requested daily event average into a number of
// title blocks, given how many events one block yields on average.
func (e *Emitter) titlesPerDay(avg float64) int {
	p := e.policy
	perTitle := 1 + p.WatchProb*(1+float64(len(p.Checkpoints))*p.ContinueProb+p.CompleteProb)
	fixed := 2 + p.SearchProb + p.ProfileProb
	n := int(math.Round((avg - fixed) / perTitle))
	return max(1, min(maxTitlesPerDay, n))
}

// PlanDay builds one persona-day. Events come back in timestamp order.
func (e *Emitter) PlanDay(p persona.Persona, day time.Time, titles int) []events.Event {
	r := e.rand
	pol := e.policy
	var plan []events.Event
	add := func(name, path string, at time.Time, props events.Properties) {
		props["backfill"] = true
		plan = append(plan, events.Event{Name: name, DistinctID: p.ID, Timestamp: at, Path: path, Properties: props})
	}

	from, to := PageviewWindow.bounds(day)
	add(events.Pageview, "/", draw(r, from, to), events.Properties{
		"utm_source":   p.Traits.UTMSource,
		"utm_medium":   p.Traits.UTMMedium,
		"utm_campaign": p.Traits.UTMCampaign,
		"archetype":    p.Traits.Archetype,
		"$locale":      p.Profile.Locale,
	})

	section := e.catalog.RandomSection(r)
	from, to = BrowseWindow.bounds(day)
	add(events.BrowseCatalog, "/browse", draw(r, from, to), events.Properties{"section": section})

	n := max(1, r.IntBetween(titles-1, titles+1))
	picked := make([]catalog.Content, n)
	from, to = TitleWindow.bounds(day)
	for i, at := range drawSorted(r, from, to, n) {
		c := e.catalog.RandomContent(r)
		picked[i] = c
		add(events.TitleOpened, "/title/"+c.ID, at, events.Properties{
			"video_id": c.ID, "title": c.Title, "genre": c.Genre, "position": i,
		})
	}

	for i, slice := range WatchWindow.split(day, n) {
		if !r.Chance(pol.WatchProb) {
			continue
		}
		c := picked[i]
		reached := 0
		for reached < len(pol.Checkpoints) && r.Chance(pol.ContinueProb) {
			reached++
		}
		complete := reached == len(pol.Checkpoints) && r.Chance(pol.CompleteProb)
		k := 1 + reached
		if complete {
			k++
		}
		times := drawSorted(r, slice[0], slice[1], k)
		path := "/title/" + c.ID
		base := func() events.Properties {
			return events.Properties{"video_id": c.ID, "title": c.Title, "genre": c.Genre}
		}
		add(events.VideoPlay, path, times[0], base())
		for j := 0; j < reached; j++ {
			props := base()
			props["progress"] = pol.Checkpoints[j]
			if c.Duration > 0 {
				props["position_seconds"] = c.Duration * pol.Checkpoints[j] / 100
			}
			add(events.VideoProgress, path, times[1+j], props)
		}
		if complete {
			props := base()
			props["progress"] = 100
			if c.Duration > 0 {
				props["watch_seconds"] = c.Duration
			}
			add(events.VideoComplete, path, times[k-1], props)
		}
	}

	if r.Chance(pol.SearchProb) {
		term := e.catalog.RandomTerm(r)
		from, to = SearchWindow.bounds(day)
		add(events.Search, "/search", draw(r, from, to), events.Properties{
			"query":   term,
			"results": len(e.catalog.Search(term)),
		})
	}
	if r.Chance(pol.ProfileProb) {
		from, to = LateWindow.bounds(day)
		add(events.Pageview, "/profile", draw(r, from, to), events.Properties{"late_night": true})
	}
	return plan
}

// emit sends a day plan in order. Events stamped after the clock's now end
// the day, since everything after them is later still.
func (e *Emitter) emit(ctx context.Context, plan []events.Event, sum *Summary) error {
	for i, ev := range plan {
		if ev.Timestamp.After(e.clock.Now()) {
			sum.Future += len(plan) - i
			return nil
		}
		if err := e.capturer.Capture(ctx, ev); err != nil {
			if errors.Is(err, events.ErrInvalidEvent) {
				sum.Rejected++
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.log.Debug("backfill capture failed", zap.String("event", ev.Name), zap.Error(err))
		}
		sum.Emitted++
		e.emitted++
		if e.emitted%e.pauseEvery == 0 && e.policy.PauseFor > 0 {
			sum.Pauses++
			if err := e.clock.Sleep(ctx, e.policy.PauseFor); err != nil {
				return err
			}
		}
	}
	return nil
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
