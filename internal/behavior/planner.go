package behavior

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"hogsim/internal/core"
	"hogsim/internal/events"
)

// Planner chooses the next page of an exploratory journey. A generative
// model can sit behind it; the default walks links at random.
type Planner interface {
	// Next returns the link to follow, or done when the journey should end.
	Next(ctx context.Context, s *Session, links []string) (next string, done bool, err error)
}

// RandomWalkPlanner follows a random same-site link it has not visited yet.
type RandomWalkPlanner struct{}

func (RandomWalkPlanner) Next(_ context.Context, s *Session, links []string) (string, bool, error) {
	seen := make(map[string]bool, len(s.Visited))
	for _, v := range s.Visited {
		seen[v] = true
	}
	base, _ := url.Parse(s.BaseURL)

	var candidates []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if base != nil && base.Host != "" && u.Host != "" && u.Host != base.Host {
			continue
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		if seen[path] || strings.HasPrefix(path, "/logout") {
			continue
		}
		candidates = append(candidates, link)
	}
	if len(candidates) == 0 {
		return "", true, nil
	}
	return core.Pick(s.Rand, candidates), false, nil
}

// Explore follows planner choices for at most maxSteps pages, thinking
// between pages. It stops early at a dead end.
func Explore(maxSteps int) Step {
	return func(ctx context.Context, s *Session) bool {
		for i := 0; i < maxSteps; i++ {
			if i > 0 {
				if err := s.Think(ctx); err != nil {
					return false
				}
			}
			var done bool
			o := exploreStep(i+1, &done).Run(ctx, s)
			if o.Status == core.StatusFailed {
				return false
			}
			if done || o.Status == core.StatusSkipped {
				return true
			}
		}
		return true
	}
}

func exploreStep(step int, done *bool) Action {
	return Action{
		Name: ActExplore,
		Do: func(ctx context.Context, s *Session) error {
			links, err := s.Page.Links(ctx)
			if err != nil {
				return err
			}
			if len(links) == 0 {
				return fmt.Errorf("%w: no links on %s", ErrPrecondition, s.Path())
			}
			next, finished, err := s.Planner.Next(ctx, s, links)
			if err != nil {
				return fmt.Errorf("planning step %d: %w", step, err)
			}
			if finished {
				*done = true
				return nil
			}
			if err := s.navigate(ctx, next); err != nil {
				return err
			}
			return s.Emit(ctx, events.Pageview, events.Properties{
				"$current_url": s.Page.URL(),
				"journey":      "ai_exploration",
				"journey_step": step,
			})
		},
	}
}
