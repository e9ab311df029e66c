// Package behavior is the action library personas execute during a visit:
// guarded actions with randomised parameters, combinators that compose them,
// and the scenarios built from both.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/core"
	"hogsim/internal/events"
	"hogsim/internal/logging"
	"hogsim/internal/persona"
	"hogsim/internal/template"
)

// SessionConfig carries everything a Session needs. Page, Events and Rand
// are required.
type SessionConfig struct {
	DistinctID string
	PersonaID  string
	Traits     persona.Traits
	Locale     string
	BaseURL    string

	Page      browser.Page
	Events    events.Capturer
	Rand      *core.Rand
	Clock     core.Clock
	Policy    Policy
	Catalog   *catalog.Catalog
	Templates *template.Engine
	Planner   Planner
	Reporter  core.Reporter
	Logger    *zap.Logger

	// Release runs once when the session ends, on every exit path.
	Release func(ctx context.Context) error
}

// Session is the execution context of one scenario run. It is created per
// visit and discarded afterwards.
type Session struct {
	DistinctID string
	PersonaID  string
	Traits     persona.Traits
	Locale     string
	Scenario   string
	BaseURL    string

	Visited []string
	Content *catalog.Content
	Plan    string

	Page      browser.Page
	Events    events.Capturer
	Rand      *core.Rand
	Clock     core.Clock
	Policy    Policy
	Catalog   *catalog.Catalog
	Templates *template.Engine
	Planner   Planner
	Reporter  core.Reporter

	log      *zap.Logger
	outcomes []Outcome
	emitted  int

	release     func(ctx context.Context) error
	releaseOnce sync.Once
	releaseErr  error
}

// NewSession builds a Session, filling optional collaborators with defaults.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Templates == nil {
		cfg.Templates = template.New(cfg.Rand, cfg.Clock)
	}
	if cfg.Planner == nil {
		cfg.Planner = RandomWalkPlanner{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = core.NullReporter
	}
	log := logging.OrNop(cfg.Logger).With(zap.String("distinct_id", cfg.DistinctID))
	if cfg.PersonaID != "" {
		log = log.With(zap.String("persona_id", cfg.PersonaID))
	}
	return &Session{
		DistinctID: cfg.DistinctID,
		PersonaID:  cfg.PersonaID,
		Traits:     cfg.Traits,
		Locale:     cfg.Locale,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		Page:       cfg.Page,
		Events:     cfg.Events,
		Rand:       cfg.Rand,
		Clock:      cfg.Clock,
		Policy:     cfg.Policy,
		Catalog:    cfg.Catalog,
		Templates:  cfg.Templates,
		Planner:    cfg.Planner,
		Reporter:   cfg.Reporter,
		log:        log,
		release:    cfg.Release,
	}
}

// EphemeralID returns a fresh analytics identity drawn from r.
func EphemeralID(r io.Reader) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.log }

// Outcomes returns every action outcome so far, in order.
func (s *Session) Outcomes() []Outcome { return append([]Outcome(nil), s.outcomes...) }

// Emitted is the number of events accepted by the sink client so far.
func (s *Session) Emitted() int { return s.emitted }

// Release runs the release hook once. Later calls return the first result.
func (s *Session) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.releaseErr = s.release(ctx)
		}
	})
	return s.releaseErr
}

// Think pauses for a human think-time draw. It is never zero.
func (s *Session) Think(ctx context.Context) error {
	return s.Clock.Sleep(ctx, s.Rand.DurationBetween(s.Policy.ThinkMin, s.Policy.ThinkMax))
}

// Path is the current page path, or "" before the first navigation.
func (s *Session) Path() string {
	u, err := url.Parse(s.Page.URL())
	if err != nil || u.Scheme == "about" {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// Emit sends one event for the session's distinct id on the current path.
// Delivery failures are the sink's concern and are not returned; an invalid
// event is.
func (s *Session) Emit(ctx context.Context, name string, props events.Properties) error {
	if props == nil {
		props = events.Properties{}
	}
	props["scenario"] = s.Scenario
	if s.Locale != "" {
		props["$locale"] = s.Locale
	}
	err := s.Events.Capture(ctx, events.Event{
		Name:       name,
		DistinctID: s.DistinctID,
		Path:       s.Path(),
		Properties: props,
	})
	if errors.Is(err, events.ErrInvalidEvent) {
		return err
	}
	s.emitted++
	if err != nil {
		s.log.Debug("event queued but batch delivery failed", zap.String("event", name), zap.Error(err))
	}
	return nil
}

// navigate loads path relative to the base URL and records the visit.
func (s *Session) navigate(ctx context.Context, target string) error {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = s.BaseURL + target
	}
	if err := s.Page.Navigate(ctx, target); err != nil {
		return err
	}
	s.Visited = append(s.Visited, s.Path())
	return nil
}

// require waits for selector within the policy timeout.
func (s *Session) require(ctx context.Context, selector string) error {
	if err := s.Page.WaitFor(ctx, selector, s.Policy.WaitTimeout); err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return fmt.Errorf("%w: %s", ErrPrecondition, err)
		}
		return err
	}
	return nil
}

// vars exposes persona traits to templates. Values are raw; templates
// escape them with the q: prefix where they land in a query string.
func (s *Session) vars(extra map[string]string) core.Variables {
	v := core.NewVariables()
	v.Set("base_url", s.BaseURL)
	v.Set("distinct_id", s.DistinctID)
	v.Set("utm_source", s.Traits.UTMSource)
	v.Set("utm_medium", s.Traits.UTMMedium)
	v.Set("utm_campaign", s.Traits.UTMCampaign)
	v.Set("archetype", s.Traits.Archetype)
	v.Set("plan_tier", s.Traits.PlanTier)
	for k, val := range extra {
		v.Set(k, val)
	}
	return v
}

func (s *Session) record(o Outcome) {
	s.outcomes = append(s.outcomes, o)
	ev := core.Event{
		ActorID:   s.PersonaID,
		Timestamp: s.Clock.Now(),
		Scenario:  s.Scenario,
		Step:      o.Action,
		Status:    o.Status,
		Duration:  o.Duration,
		Emitted:   o.Events,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	s.Reporter.Report(ev)
}
