package backfill

import (
	"errors"
	"fmt"
	"time"
)

// Policy holds the activity model and content probabilities of a backfill.
type Policy struct {
	// PoolFraction is the share of the persona pool sampled on each day.
	PoolFraction float64 `yaml:"pool_fraction"`
	// Activity on day d is Base*exp(-Decay*d) plus WeeklyBoost on the
	// persona's preferred weekday, clamped to [Floor, 1].
	Base        float64 `yaml:"base"`
	Decay       float64 `yaml:"decay"`
	WeeklyBoost float64 `yaml:"weekly_boost"`
	Floor       float64 `yaml:"floor"`

	WatchProb    float64 `yaml:"watch_prob"`
	ContinueProb float64 `yaml:"continue_prob"`
	CompleteProb float64 `yaml:"complete_prob"`
	SearchProb   float64 `yaml:"search_prob"`
	ProfileProb  float64 `yaml:"profile_prob"`
	Checkpoints  []int   `yaml:"checkpoints"`

	PauseFor time.Duration `yaml:"pause_for"`
}

// DefaultPolicy returns the built-in backfill constants.
func DefaultPolicy() Policy {
	return Policy{
		PoolFraction: 0.6,
		Base:         0.55,
		Decay:        0.03,
		WeeklyBoost:  0.15,
		Floor:        0.05,
		WatchProb:    0.7,
		ContinueProb: 0.85,
		CompleteProb: 0.3,
		SearchProb:   0.35,
		ProfileProb:  0.05,
		Checkpoints:  []int{10, 30, 60, 90},
		PauseFor:     250 * time.Millisecond,
	}
}

// Validate reports unusable constants.
func (p Policy) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"pool_fraction": p.PoolFraction,
		"base":          p.Base,
		"weekly_boost":  p.WeeklyBoost,
		"floor":         p.Floor,
		"watch_prob":    p.WatchProb,
		"continue_prob": p.ContinueProb,
		"complete_prob": p.CompleteProb,
		"search_prob":   p.SearchProb,
		"profile_prob":  p.ProfileProb,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	if p.PoolFraction == 0 {
		errs = append(errs, errors.New("pool_fraction must be positive"))
	}
	if p.Decay < 0 {
		errs = append(errs, errors.New("decay must not be negative"))
	}
	if p.PauseFor < 0 {
		errs = append(errs, errors.New("pause_for must not be negative"))
	}
	prev := 0
	for _, cp := range p.Checkpoints {
		if cp <= prev || cp >= 100 {
			errs = append(errs, errors.New("checkpoints must increase strictly inside (0,100)"))
			break
		}
		prev = cp
	}
	return errors.Join(errs...)
}
