package behavior

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/core"
)

// Scenario names.
const (
	ReturningUser = "returning_user"
	PricingFunnel = "pricing_funnel"
	RageClickDemo = "rage_click_demo"
	AIExploration = "ai_exploration"
)

// Scenario is a named session script. Ephemeral scenarios run under a fresh
// distinct id instead of the persona's.
type Scenario struct {
	Name      string
	Ephemeral bool
	Body      Step
}

// endSessionGrace bounds end_session once the visit's own context is done.
const endSessionGrace = 30 * time.Second

// Run executes the body and then end_session. end_session runs on every
// exit path, including a panic unwinding through Run and a cancelled ctx.
// completed is false when the body stopped on a failed action.
func (sc Scenario) Run(ctx context.Context, s *Session) (completed bool) {
	s.Scenario = sc.Name
	s.log = s.log.With(zap.String("scenario", sc.Name))
	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endSessionGrace)
		defer cancel()
		EndSession.Run(endCtx, s)
	}()
	return sc.Body(ctx, s)
}

var builtins = map[string]func(Policy) Scenario{
	ReturningUser: NewReturningUser,
	PricingFunnel: NewPricingFunnel,
	RageClickDemo: NewRageClickDemo,
	AIExploration: NewAIExploration,
}

// NewReturningUser: land, browse, open one or two titles and maybe watch,
// maybe search, rarely revisit the profile page.
func NewReturningUser(p Policy) Scenario {
	return Scenario{
		Name: ReturningUser,
		Body: Seq(
			Do(Land("/")),
			Do(BrowseSection),
			Maybe(p.OpenProb, Repeat(1, 2, Seq(
				Do(OpenContent),
				Maybe(p.WatchProb, Do(WatchContent)),
			))),
			Maybe(p.SearchProb, Seq(Do(Visit("/")), Do(SearchCatalog))),
			Maybe(p.ProfileProb, Do(Visit("/profile"))),
		),
	}
}

// NewPricingFunnel: land on pricing, dwell, maybe pick a plan, and sign up
// when the plan click reached the signup page.
func NewPricingFunnel(p Policy) Scenario {
	return Scenario{
		Name:      PricingFunnel,
		Ephemeral: true,
		Body: Seq(
			Do(Land("/pricing")),
			Pause(p.PricingDwellMin, p.PricingDwellMax),
			Maybe(p.SelectPlanProb, Seq(
				Do(SelectPricingPlan),
				When(func(s *Session) bool { return s.Plan != "" }, Do(FillSignupForm)),
			)),
		),
	}
}

// NewRageClickDemo: land, log in, browse, then rage-click on pricing.
func NewRageClickDemo(Policy) Scenario {
	return Scenario{
		Name: RageClickDemo,
		Body: Seq(
			Do(Land("/")),
			Do(Visit("/login")),
			Do(Login),
			Do(BrowseSection),
			Do(Visit("/pricing")),
			Do(RageClick),
		),
	}
}

// NewAIExploration: land and follow the planner.
func NewAIExploration(p Policy) Scenario {
	return Scenario{
		Name: AIExploration,
		Body: Seq(
			Do(Land("/")),
			Explore(p.ExploreMaxSteps),
		),
	}
}

// Scenarios returns every built-in scenario in name order.
func Scenarios(p Policy) []Scenario {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Scenario, len(names))
	for i, name := range names {
		out[i] = builtins[name](p)
	}
	return out
}

// Lookup returns the built-in scenario called name.
func Lookup(name string, p Policy) (Scenario, error) {
	build, ok := builtins[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
	return build(p), nil
}

// Picker draws a scenario per persona by the policy's scenario weights.
type Picker struct {
	scenarios []Scenario
	weights   []float64
}

func NewPicker(p Policy) *Picker {
	pk := &Picker{}
	for _, sc := range Scenarios(p) {
		pk.scenarios = append(pk.scenarios, sc)
		pk.weights = append(pk.weights, p.ScenarioWeights[sc.Name])
	}
	return pk
}

// Pick returns a scenario. With no positive weight it falls back to the
// returning-user journey.
func (pk *Picker) Pick(r *core.Rand) Scenario {
	i := r.Weighted(pk.weights)
	if i < 0 {
		for _, sc := range pk.scenarios {
			if sc.Name == ReturningUser {
				return sc
			}
		}
	}
	return pk.scenarios[i]
}
