// Package schedule decides when a persona comes back for its next visit.
//
// Return intervals are drawn from weighted tiers that mimic daily and weekly
// retention curves. All randomness comes from an injected core.Rand.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"hogsim/internal/core"
)

// Tier is a named band of return delays.
type Tier struct {
	Name   string        `yaml:"name"`
	Weight int           `yaml:"weight"` // percent, all tiers sum to 100
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
}

// Policy picks the next visit delay for a persona.
type Policy struct {
	Tiers []Tier `yaml:"tiers"`
}

// DefaultTiers returns the built-in retention tiers.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "next-day", Weight: 30, Min: 22 * time.Hour, Max: 28 * time.Hour},
		{Name: "short-return", Weight: 20, Min: 48 * time.Hour, Max: 72 * time.Hour},
		{Name: "mid-return", Weight: 30, Min: 96 * time.Hour, Max: 168 * time.Hour},
		{Name: "sparse", Weight: 20, Min: 24 * time.Hour, Max: 48 * time.Hour},
	}
}

// DefaultPolicy returns a Policy with DefaultTiers.
func DefaultPolicy() *Policy {
	return &Policy{Tiers: DefaultTiers()}
}

// Validate checks that weights sum to 100 and every range is strictly positive.
func (p *Policy) Validate() error {
	if len(p.Tiers) == 0 {
		return errors.New("schedule policy has no tiers")
	}
	var errs []error
	total := 0
	for _, t := range p.Tiers {
		if t.Weight < 0 {
			errs = append(errs, fmt.Errorf("tier %q: negative weight %d", t.Name, t.Weight))
		}
		if t.Min <= 0 {
			errs = append(errs, fmt.Errorf("tier %q: min must be > 0, got %v", t.Name, t.Min))
		}
		if t.Max < t.Min {
			errs = append(errs, fmt.Errorf("tier %q: max %v < min %v", t.Name, t.Max, t.Min))
		}
		total += t.Weight
	}
	if total != 100 {
		errs = append(errs, fmt.Errorf("tier weights sum to %d, want 100", total))
	}
	return errors.Join(errs...)
}

// Draw picks a tier by weight and a delay uniformly inside its range.
// The returned delay is always > 0 for a validated policy.
func (p *Policy) Draw(rng *core.Rand) (Tier, time.Duration) {
	roll := rng.Intn(100)
	tier := p.Tiers[len(p.Tiers)-1]
	for _, t := range p.Tiers {
		if roll < t.Weight {
			tier = t
			break
		}
		roll -= t.Weight
	}
	return tier, rng.DurationBetween(tier.Min, tier.Max)
}

// NextVisitDelay returns only the delay from Draw.
func (p *Policy) NextVisitDelay(rng *core.Rand) time.Duration {
	_, d := p.Draw(rng)
	return d
}

// NextVisitAt returns now plus a drawn delay.
func (p *Policy) NextVisitAt(rng *core.Rand, now time.Time) time.Time {
	return now.Add(p.NextVisitDelay(rng))
}

// Bounds returns the smallest Min and largest Max across all tiers.
func (p *Policy) Bounds() (time.Duration, time.Duration) {
	var lo, hi time.Duration
	for i, t := range p.Tiers {
		if i == 0 || t.Min < lo {
			lo = t.Min
		}
		if t.Max > hi {
			hi = t.Max
		}
	}
	return lo, hi
}
