package behavior

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hogsim/internal/browser"
	"hogsim/internal/core"
	"hogsim/internal/events"
)

const (
	rageStartDelay = 200 * time.Millisecond
	rageStep       = 25 * time.Millisecond
	rageFloor      = 50 * time.Millisecond
	rageJitter     = 10 * time.Millisecond
	rageHesitateAt = 3
)

// RageClickDelay is the pause after click n (1-based): it starts at 200ms
// and shrinks by 25ms per click down to 50ms, plus up to 10ms of jitter.
// After the third click the user hesitates for a longer, policy-bounded pause.
func RageClickDelay(n int, r *core.Rand, p Policy) time.Duration {
	if n == rageHesitateAt {
		return r.DurationBetween(p.RageHesitationMin, p.RageHesitationMax)
	}
	d := rageStartDelay - time.Duration(n-1)*rageStep
	if d < rageFloor {
		d = rageFloor
	}
	return d + r.DurationBetween(0, rageJitter)
}

// RageClick bursts clicks on an unresponsive target. The click count is
// drawn once; total_clicks on the abandon event always equals the number of
// attempt events emitted.
var RageClick = Action{
	Name: ActRageClick,
	Pre: func(ctx context.Context, s *Session) error {
		return s.require(ctx, browser.SelRageTarget)
	},
	Do: func(ctx context.Context, s *Session) error {
		targets, err := s.Page.Query(ctx, browser.SelRageTarget)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return fmt.Errorf("%w: no rage target", ErrPrecondition)
		}
		target := targets[0].Attr("data-rage-target")
		planned := s.Rand.IntBetween(s.Policy.RageMinClicks, s.Policy.RageMaxClicks)

		if err := s.Emit(ctx, events.RageClickStarted, events.Properties{"target": target}); err != nil {
			return err
		}

		clicks := 0
		var burstErr error
		for n := 1; n <= planned; n++ {
			if err := s.Page.Click(ctx, browser.SelRageTarget, 0, jitter(s, 8)); err != nil {
				burstErr = err
				break
			}
			clicks++
			if err := s.Emit(ctx, events.RageClickAttempt, events.Properties{"target": target, "attempt": n}); err != nil {
				return err
			}
			if n == planned {
				break
			}
			if err := s.Clock.Sleep(ctx, RageClickDelay(n, s.Rand, s.Policy)); err != nil {
				burstErr = err
				break
			}
		}

		if err := s.Emit(ctx, events.RageClickAbandon, events.Properties{
			"target":       target,
			"total_clicks": clicks,
		}); err != nil {
			return err
		}
		if burstErr != nil && !errors.Is(burstErr, browser.ErrElementNotFound) {
			return burstErr
		}
		return nil
	},
}
