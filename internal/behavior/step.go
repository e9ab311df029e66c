package behavior

import (
	"context"
	"time"

	"hogsim/internal/core"
)

// Step is a node of a scenario body. It returns false when the body must
// stop: an action failed or the context ended. A skipped action does not
// stop the body.
type Step func(ctx context.Context, s *Session) bool

// Do runs a single action.
func Do(a Action) Step {
	return func(ctx context.Context, s *Session) bool {
		return a.Run(ctx, s).Status != core.StatusFailed
	}
}

// Seq runs steps in order with a think-time pause between them.
func Seq(steps ...Step) Step {
	return func(ctx context.Context, s *Session) bool {
		for i, step := range steps {
			if i > 0 {
				if err := s.Think(ctx); err != nil {
					return false
				}
			}
			if !step(ctx, s) {
				return false
			}
		}
		return true
	}
}

// Maybe runs step with probability p.
func Maybe(p float64, step Step) Step {
	return func(ctx context.Context, s *Session) bool {
		if !s.Rand.Chance(p) {
			return true
		}
		return step(ctx, s)
	}
}

// Choice is one weighted branch of OneOf.
type Choice struct {
	Weight float64
	Step   Step
}

// OneOf runs one branch chosen by weight. No positive weight runs nothing.
func OneOf(choices ...Choice) Step {
	return func(ctx context.Context, s *Session) bool {
		weights := make([]float64, len(choices))
		for i, c := range choices {
			weights[i] = c.Weight
		}
		i := s.Rand.Weighted(weights)
		if i < 0 {
			return true
		}
		return choices[i].Step(ctx, s)
	}
}

// Repeat runs step between lo and hi times, thinking between repetitions.
func Repeat(lo, hi int, step Step) Step {
	return func(ctx context.Context, s *Session) bool {
		n := s.Rand.IntBetween(lo, hi)
		for i := 0; i < n; i++ {
			if i > 0 {
				if err := s.Think(ctx); err != nil {
					return false
				}
			}
			if !step(ctx, s) {
				return false
			}
		}
		return true
	}
}

// When runs step only if cond holds at that point of the session.
func When(cond func(s *Session) bool, step Step) Step {
	return func(ctx context.Context, s *Session) bool {
		if !cond(s) {
			return true
		}
		return step(ctx, s)
	}
}

// Pause waits for a uniform draw in [lo, hi].
func Pause(lo, hi time.Duration) Step {
	return func(ctx context.Context, s *Session) bool {
		return s.Clock.Sleep(ctx, s.Rand.DurationBetween(lo, hi)) == nil
	}
}
