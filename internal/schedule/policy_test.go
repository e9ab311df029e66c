package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hogsim/internal/core"
)

func TestDefaultPolicy_Valid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
		ok    bool
	}{
		{"empty", nil, false},
		{"sum below 100", []Tier{{Name: "a", Weight: 50, Min: time.Hour, Max: 2 * time.Hour}}, false},
		{"zero min", []Tier{{Name: "a", Weight: 100, Min: 0, Max: time.Hour}}, false},
		{"inverted range", []Tier{{Name: "a", Weight: 100, Min: 2 * time.Hour, Max: time.Hour}}, false},
		{"single tier", []Tier{{Name: "a", Weight: 100, Min: time.Hour, Max: time.Hour}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Policy{Tiers: tt.tiers}).Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNextVisitDelay_PositiveAndWithinTierUnion(t *testing.T) {
	p := DefaultPolicy()
	rng := core.NewRand(17)

	for i := 0; i < 10000; i++ {
		tier, d := p.Draw(rng)
		require.Greater(t, d, time.Duration(0))
		assert.GreaterOrEqual(t, d, tier.Min, "tier %s", tier.Name)
		assert.LessOrEqual(t, d, tier.Max, "tier %s", tier.Name)
	}
}

func TestDraw_DistributionConvergesToWeights(t *testing.T) {
	p := DefaultPolicy()
	rng := core.NewRand(2024)
	const n = 50000

	counts := map[string]int{}
	for i := 0; i < n; i++ {
		tier, _ := p.Draw(rng)
		counts[tier.Name]++
	}

	for _, tier := range p.Tiers {
		got := float64(counts[tier.Name]) / n
		assert.InDelta(t, float64(tier.Weight)/100, got, 0.01, "tier %s", tier.Name)
	}
}

func TestDraw_Deterministic(t *testing.T) {
	p := DefaultPolicy()
	a, b := core.NewRand(5), core.NewRand(5)
	for i := 0; i < 100; i++ {
		assert.Equal(t, p.NextVisitDelay(a), p.NextVisitDelay(b))
	}
}

func TestNextVisitAt_InFuture(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next := DefaultPolicy().NextVisitAt(core.NewRand(1), now)
	assert.True(t, next.After(now))
}

func TestBounds(t *testing.T) {
	lo, hi := DefaultPolicy().Bounds()
	assert.Equal(t, 22*time.Hour, lo)
	assert.Equal(t, 168*time.Hour, hi)
}
