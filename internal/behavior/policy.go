package behavior

import (
	"errors"
	"fmt"
	"time"
)

// Policy holds every behaviour constant. Probabilities are independent per
// draw. Durations are the bounds of uniform draws.
type Policy struct {
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	ThinkMin    time.Duration `yaml:"think_min"`
	ThinkMax    time.Duration `yaml:"think_max"`

	OpenProb       float64       `yaml:"open_prob"`
	WatchProb      float64       `yaml:"watch_prob"`
	CheckpointProb float64       `yaml:"checkpoint_prob"`
	CompleteProb   float64       `yaml:"complete_prob"`
	Checkpoints    []int         `yaml:"checkpoints"`
	WatchStepMin   time.Duration `yaml:"watch_step_min"`
	WatchStepMax   time.Duration `yaml:"watch_step_max"`
	SearchProb     float64       `yaml:"search_prob"`
	ProfileProb    float64       `yaml:"profile_prob"`

	PricingDwellMin    time.Duration      `yaml:"pricing_dwell_min"`
	PricingDwellMax    time.Duration      `yaml:"pricing_dwell_max"`
	SelectPlanProb     float64            `yaml:"select_plan_prob"`
	ProceedProb        float64            `yaml:"proceed_prob"`
	PlanWeights        map[string]float64 `yaml:"plan_weights"`
	AnnoyanceProb      float64            `yaml:"annoyance_prob"`
	SignupCompleteProb float64            `yaml:"signup_complete_prob"`

	RageMinClicks     int           `yaml:"rage_min_clicks"`
	RageMaxClicks     int           `yaml:"rage_max_clicks"`
	RageHesitationMin time.Duration `yaml:"rage_hesitation_min"`
	RageHesitationMax time.Duration `yaml:"rage_hesitation_max"`

	ExploreMaxSteps int `yaml:"explore_max_steps"`

	ScenarioWeights map[string]float64 `yaml:"scenario_weights"`

	EntryTemplate    string `yaml:"entry_template"`
	EmailTemplate    string `yaml:"email_template"`
	PasswordTemplate string `yaml:"password_template"`
}

// DefaultPolicy returns the built-in behaviour constants.
func DefaultPolicy() Policy {
	return Policy{
		WaitTimeout: 10 * time.Second,
		ThinkMin:    800 * time.Millisecond,
		ThinkMax:    3 * time.Second,

		OpenProb:       0.85,
		WatchProb:      0.7,
		CheckpointProb: 0.8,
		CompleteProb:   0.35,
		Checkpoints:    []int{10, 30, 60, 90},
		WatchStepMin:   2 * time.Second,
		WatchStepMax:   6 * time.Second,
		SearchProb:     0.4,
		ProfileProb:    0.1,

		PricingDwellMin:    2 * time.Second,
		PricingDwellMax:    8 * time.Second,
		SelectPlanProb:     0.75,
		ProceedProb:        0.88,
		PlanWeights:        map[string]float64{"basic": 0.3, "standard": 0.5, "premium": 0.2},
		AnnoyanceProb:      0.3,
		SignupCompleteProb: 0.6,

		RageMinClicks:     5,
		RageMaxClicks:     12,
		RageHesitationMin: 800 * time.Millisecond,
		RageHesitationMax: 1500 * time.Millisecond,

		ExploreMaxSteps: 8,

		ScenarioWeights: map[string]float64{
			ReturningUser: 0.6,
			PricingFunnel: 0.2,
			RageClickDemo: 0.1,
			AIExploration: 0.1,
		},

		EntryTemplate:    "${base_url}${entry_path}?utm_source=${q:utm_source}&utm_medium=${q:utm_medium}&utm_campaign=${q:utm_campaign}&synthetic=1&hs=${random_string(8)}",
		EmailTemplate:    "hog+${random_string(10)}@hogflix.test",
		PasswordTemplate: "Hog!${random_string(14)}",
	}
}

// Validate checks the constants that would break pacing or the scenarios.
func (p Policy) Validate() error {
	var errs []error
	probs := map[string]float64{
		"open_prob":            p.OpenProb,
		"watch_prob":           p.WatchProb,
		"checkpoint_prob":      p.CheckpointProb,
		"complete_prob":        p.CompleteProb,
		"search_prob":          p.SearchProb,
		"profile_prob":         p.ProfileProb,
		"select_plan_prob":     p.SelectPlanProb,
		"proceed_prob":         p.ProceedProb,
		"annoyance_prob":       p.AnnoyanceProb,
		"signup_complete_prob": p.SignupCompleteProb,
	}
	for name, v := range probs {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	if p.WaitTimeout <= 0 {
		errs = append(errs, errors.New("wait_timeout must be positive"))
	}
	if p.ThinkMin <= 0 || p.ThinkMax < p.ThinkMin {
		errs = append(errs, fmt.Errorf("think time [%s, %s] must be positive and ordered", p.ThinkMin, p.ThinkMax))
	}
	if p.WatchStepMin <= 0 || p.WatchStepMax < p.WatchStepMin {
		errs = append(errs, fmt.Errorf("watch step [%s, %s] must be positive and ordered", p.WatchStepMin, p.WatchStepMax))
	}
	if p.PricingDwellMin < 0 || p.PricingDwellMax < p.PricingDwellMin {
		errs = append(errs, fmt.Errorf("pricing dwell [%s, %s] must be ordered", p.PricingDwellMin, p.PricingDwellMax))
	}
	if p.RageMinClicks < 1 || p.RageMaxClicks < p.RageMinClicks {
		errs = append(errs, fmt.Errorf("rage clicks [%d, %d] must be at least 1 and ordered", p.RageMinClicks, p.RageMaxClicks))
	}
	if p.RageHesitationMin <= 0 || p.RageHesitationMax < p.RageHesitationMin {
		errs = append(errs, fmt.Errorf("rage hesitation [%s, %s] must be positive and ordered", p.RageHesitationMin, p.RageHesitationMax))
	}
	prev := 0
	for _, cp := range p.Checkpoints {
		if cp <= prev || cp >= 100 {
			errs = append(errs, fmt.Errorf("checkpoints must increase strictly inside (0,100), got %v", p.Checkpoints))
			break
		}
		prev = cp
	}
	if p.ExploreMaxSteps < 1 {
		errs = append(errs, errors.New("explore_max_steps must be at least 1"))
	}
	var total float64
	for name, w := range p.ScenarioWeights {
		if _, ok := builtins[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown scenario %q in scenario_weights", name))
		}
		if w < 0 {
			errs = append(errs, fmt.Errorf("scenario weight for %q is negative", name))
		}
		total += w
	}
	if total <= 0 {
		errs = append(errs, errors.New("scenario_weights must give at least one scenario a positive weight"))
	}
	if p.EntryTemplate == "" || p.EmailTemplate == "" || p.PasswordTemplate == "" {
		errs = append(errs, errors.New("templates must not be empty"))
	}
	return errors.Join(errs...)
}
