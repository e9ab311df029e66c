package behavior

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/browser"
	"hogsim/internal/catalog"
	"hogsim/internal/events"
)

// Action names, as reported in run summaries.
const (
	ActLand        = "land_with_attribution"
	ActVisit       = "visit"
	ActBrowse      = "browse_section"
	ActOpenContent = "open_content"
	ActWatch       = "watch_content"
	ActRageClick   = "rage_click"
	ActSearch      = "search_catalog"
	ActSignup      = "fill_signup_form"
	ActSelectPlan  = "select_pricing_plan"
	ActLogin       = "login"
	ActExplore     = "explore"
	ActEndSession  = "end_session"
)

// jitter is a small random click offset in pixels.
func jitter(s *Session, px float64) browser.Point {
	return browser.Point{
		X: (s.Rand.Float64()*2 - 1) * px,
		Y: (s.Rand.Float64()*2 - 1) * px,
	}
}

// Land opens the entry URL for path with the persona's attribution
// parameters. It only runs at the start of a session.
func Land(path string) Action {
	return Action{
		Name: ActLand,
		Pre: func(ctx context.Context, s *Session) error {
			if len(s.Visited) > 0 {
				return fmt.Errorf("%w: session already started", ErrPrecondition)
			}
			return nil
		},
		Do: func(ctx context.Context, s *Session) error {
			entry, err := s.Templates.Substitute(s.Policy.EntryTemplate, s.vars(map[string]string{"entry_path": path}))
			if err != nil {
				return fmt.Errorf("building entry url: %w", err)
			}
			if err := s.navigate(ctx, entry); err != nil {
				return err
			}
			return s.Emit(ctx, events.Pageview, events.Properties{
				"$current_url": s.Page.URL(),
				"utm_source":   s.Traits.UTMSource,
				"utm_medium":   s.Traits.UTMMedium,
				"utm_campaign": s.Traits.UTMCampaign,
				"archetype":    s.Traits.Archetype,
				"entry":        true,
			})
		},
	}
}

// Visit navigates to path and records a pageview.
func Visit(path string) Action {
	return Action{
		Name: ActVisit,
		Do: func(ctx context.Context, s *Session) error {
			if err := s.navigate(ctx, path); err != nil {
				return err
			}
			return s.Emit(ctx, events.Pageview, events.Properties{"$current_url": s.Page.URL()})
		},
	}
}

// BrowseSection opens one catalog section.
var BrowseSection = Action{
	Name: ActBrowse,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelSection)
	},
	Do: func(ctx context.Context, s *Session) error {
		sections, err := s.Page.Query(ctx, browser.SelSection)
		if err != nil {
			return err
		}
		if len(sections) == 0 {
			return fmt.Errorf("%w: no sections", ErrPrecondition)
		}
		i := s.Rand.Intn(len(sections))
		section := sections[i].Attr("data-section")
		if err := s.Page.Click(ctx, browser.SelSection, i, jitter(s, 6)); err != nil {
			return err
		}
		s.Visited = append(s.Visited, s.Path())
		return s.Emit(ctx, events.BrowseCatalog, events.Properties{
			"section":  section,
			"position": i,
		})
	},
}

// OpenContent opens one content card and makes it the session's content.
var OpenContent = Action{
	Name: ActOpenContent,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelContentCard)
	},
	Do: func(ctx context.Context, s *Session) error {
		cards, err := s.Page.Query(ctx, browser.SelContentCard)
		if err != nil {
			return err
		}
		if len(cards) == 0 {
			return fmt.Errorf("%w: no content cards", ErrPrecondition)
		}
		i := s.Rand.Intn(len(cards))
		card := cards[i]
		if err := s.Page.Click(ctx, browser.SelContentCard, i, jitter(s, 10)); err != nil {
			return err
		}
		s.Visited = append(s.Visited, s.Path())

		content, ok := s.Catalog.Lookup(card.Attr("data-video-id"))
		if !ok {
			content = catalog.Content{
				ID:    card.Attr("data-video-id"),
				Title: card.Attr("data-title"),
				Genre: card.Attr("data-genre"),
			}
		}
		s.Content = &content
		return s.Emit(ctx, events.TitleOpened, events.Properties{
			"video_id": content.ID,
			"title":    content.Title,
			"genre":    content.Genre,
			"position": i,
		})
	},
}

// WatchContent plays the open content and reports progress checkpoints.
// Each checkpoint is included independently with CheckpointProb; completion
// is a separate draw with CompleteProb.
var WatchContent = Action{
	Name: ActWatch,
	Pre: func(ctx context.Context, s *Session) error {
		if s.Content == nil {
			return fmt.Errorf("%w: no content open", ErrPrecondition)
		}
		return s.require(ctx, browser.SelPlayButton)
	},
	Do: func(ctx context.Context, s *Session) error {
		if err := s.Page.Click(ctx, browser.SelPlayButton, 0, jitter(s, 4)); err != nil {
			return err
		}
		c := s.Content
		base := events.Properties{"video_id": c.ID, "title": c.Title, "genre": c.Genre}
		if err := s.Emit(ctx, events.VideoPlay, clone(base)); err != nil {
			return err
		}

		for _, cp := range s.Policy.Checkpoints {
			if err := s.Clock.Sleep(ctx, s.Rand.DurationBetween(s.Policy.WatchStepMin, s.Policy.WatchStepMax)); err != nil {
				return err
			}
			if !s.Rand.Chance(s.Policy.CheckpointProb) {
				continue
			}
			props := clone(base)
			props["progress"] = cp
			if c.Duration > 0 {
				props["position_seconds"] = c.Duration * cp / 100
			}
			if err := s.Emit(ctx, events.VideoProgress, props); err != nil {
				return err
			}
		}

		if s.Rand.Chance(s.Policy.CompleteProb) {
			props := clone(base)
			props["progress"] = 100
			if c.Duration > 0 {
				props["watch_seconds"] = c.Duration
			}
			return s.Emit(ctx, events.VideoComplete, props)
		}
		return nil
	},
}

func clone(p events.Properties) events.Properties {
	out := make(events.Properties, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SearchCatalog issues a query from the catalog's term pool.
var SearchCatalog = Action{
	Name: ActSearch,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelSearchInput)
	},
	Do: func(ctx context.Context, s *Session) error {
		term := s.Catalog.RandomTerm(s.Rand)
		if err := s.Page.Fill(ctx, browser.SelSearchInput, term); err != nil {
			return err
		}
		if err := s.Page.Click(ctx, browser.SelSearchSubmit, 0, jitter(s, 3)); err != nil {
			return err
		}
		s.Visited = append(s.Visited, s.Path())
		results, err := s.Page.Query(ctx, browser.SelContentCard)
		if err != nil {
			return err
		}
		return s.Emit(ctx, events.Search, events.Properties{
			"query":   term,
			"results": len(results),
		})
	},
}

// FillSignupForm fills generated credentials, sometimes trips over the
// annoyance element first, and submits with SignupCompleteProb.
var FillSignupForm = Action{
	Name: ActSignup,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelSignupForm)
	},
	Do: func(ctx context.Context, s *Session) error {
		if err := s.Emit(ctx, events.SignupStarted, events.Properties{"plan": s.Plan}); err != nil {
			return err
		}

		creds, err := s.Templates.SubstituteMap(map[string]string{
			"email":    s.Policy.EmailTemplate,
			"password": s.Policy.PasswordTemplate,
		}, s.vars(nil))
		if err != nil {
			return fmt.Errorf("generating credentials: %w", err)
		}
		if s.Traits.Email != "" && s.DistinctID == s.PersonaID {
			creds["email"] = s.Traits.Email
		}
		name := "Hog " + s.DistinctID[:min(6, len(s.DistinctID))]

		fields := []struct{ sel, value string }{
			{browser.SelNameInput, name},
			{browser.SelEmailInput, creds["email"]},
			{browser.SelPasswordInput, creds["password"]},
		}
		for _, f := range fields {
			if err := s.Page.Fill(ctx, f.sel, f.value); err != nil {
				if errors.Is(err, browser.ErrElementNotFound) && f.sel == browser.SelNameInput {
					continue
				}
				return err
			}
			if err := s.Clock.Sleep(ctx, s.Rand.DurationBetween(200*time.Millisecond, 900*time.Millisecond)); err != nil {
				return err
			}
		}

		if s.Rand.Chance(s.Policy.AnnoyanceProb) {
			err := s.Page.Click(ctx, browser.SelAnnoyance, 0, jitter(s, 5))
			switch {
			case err == nil:
				if err := s.Emit(ctx, events.SignupAnnoyance, events.Properties{"kind": "newsletter_popup"}); err != nil {
					return err
				}
			case !errors.Is(err, browser.ErrElementNotFound):
				return err
			}
		}

		if !s.Rand.Chance(s.Policy.SignupCompleteProb) {
			s.log.Debug("signup abandoned before submit")
			return nil
		}
		if err := s.Page.Click(ctx, browser.SelSubmit, 0, jitter(s, 4)); err != nil {
			return err
		}
		s.Visited = append(s.Visited, s.Path())
		return s.Emit(ctx, events.SignupCompleted, events.Properties{"plan": s.Plan, "method": "email"})
	},
}

// SelectPricingPlan picks a plan by weight and proceeds to signup with
// ProceedProb.
var SelectPricingPlan = Action{
	Name: ActSelectPlan,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelPlan)
	},
	Do: func(ctx context.Context, s *Session) error {
		plans, err := s.Page.Query(ctx, browser.SelPlan)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			return fmt.Errorf("%w: no plans", ErrPrecondition)
		}
		weights := make([]float64, len(plans))
		for i, p := range plans {
			w, ok := s.Policy.PlanWeights[p.Attr("data-plan")]
			if !ok {
				w = 1
			}
			weights[i] = w
		}
		i := s.Rand.Weighted(weights)
		if i < 0 {
			i = 0
		}
		plan := plans[i].Attr("data-plan")
		props := events.Properties{"plan": plan}
		if price, err := strconv.ParseFloat(plans[i].Attr("data-price"), 64); err == nil {
			props["price"] = price
		}
		if err := s.Emit(ctx, events.PlanSelected, props); err != nil {
			return err
		}

		if !s.Rand.Chance(s.Policy.ProceedProb) {
			return s.Emit(ctx, events.PricingAbandoned, events.Properties{"plan": plan})
		}
		if err := s.Page.Click(ctx, browser.SelPlan, i, jitter(s, 8)); err != nil {
			return err
		}
		s.Plan = plan
		s.Visited = append(s.Visited, s.Path())
		return s.Emit(ctx, events.CheckoutStarted, events.Properties{"plan": plan})
	},
}

// Login signs the persona in with its own email.
var Login = Action{
	Name: ActLogin,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelLoginForm)
	},
	Do: func(ctx context.Context, s *Session) error {
		email := s.Traits.Email
		if email == "" {
			var err error
			if email, err = s.Templates.Substitute(s.Policy.EmailTemplate, s.vars(nil)); err != nil {
				return err
			}
		}
		password, err := s.Templates.Substitute(s.Policy.PasswordTemplate, s.vars(nil))
		if err != nil {
			return err
		}
		if err := s.Page.Fill(ctx, browser.SelEmailInput, email); err != nil {
			return err
		}
		if err := s.Page.Fill(ctx, browser.SelPasswordInput, password); err != nil {
			return err
		}
		if err := s.Page.Click(ctx, browser.SelSubmit, 0, jitter(s, 4)); err != nil {
			return err
		}
		s.Visited = append(s.Visited, s.Path())
		return s.Emit(ctx, events.Login, events.Properties{"method": "email"})
	},
}

// EndSession flushes pending events and releases the actor context. It
// emits nothing and never fails the session.
var EndSession = Action{
	Name: ActEndSession,
	Do: func(ctx context.Context, s *Session) error {
		if err := s.Events.Flush(ctx); err != nil {
			s.log.Warn("flushing events at session end", zap.Error(err))
		}
		if err := s.Release(ctx); err != nil {
			s.log.Warn("releasing actor context", zap.Error(err))
		}
		return nil
	},
}
