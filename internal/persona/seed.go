package persona

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"hogsim/internal/core"
)

// DefaultSeedHorizon bounds the first visit of freshly seeded personas.
const DefaultSeedHorizon = 3 * time.Hour

// minFirstVisit keeps seeded personas from being due at seed time.
const minFirstVisit = time.Minute

// DevicePalette is the fixed set of device/locale profiles assigned round-robin.
var DevicePalette = []DeviceProfile{
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Viewport:  Viewport{Width: 1440, Height: 900},
		Locale:    "en-US",
		Timezone:  "America/New_York",
	},
	{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Viewport:  Viewport{Width: 390, Height: 844},
		Locale:    "en-GB",
		Timezone:  "Europe/London",
	},
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		Viewport:  Viewport{Width: 1920, Height: 1080},
		Locale:    "de-DE",
		Timezone:  "Europe/Berlin",
	},
	{
		UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		Viewport:  Viewport{Width: 412, Height: 915},
		Locale:    "es-ES",
		Timezone:  "Europe/Madrid",
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		Viewport:  Viewport{Width: 1280, Height: 800},
		Locale:    "fr-FR",
		Timezone:  "Europe/Paris",
	},
	{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Viewport:  Viewport{Width: 1366, Height: 768},
		Locale:    "pt-BR",
		Timezone:  "America/Sao_Paulo",
	},
}

var (
	archetypes = []string{"binge_watcher", "casual_browser", "deal_hunter", "power_user", "explorer"}
	planTiers  = []string{"free", "basic", "standard", "premium"}
	utmSources = []struct{ source, medium, campaign string }{
		{"google", "cpc", "spring_launch"},
		{"newsletter", "email", "weekly_picks"},
		{"twitter", "social", "hedgehog_memes"},
		{"direct", "none", ""},
		{"partner", "referral", "b2b_pilot"},
		{"youtube", "video", "trailer_drop"},
		{"reddit", "social", "ama"},
	}
	companies = []string{"", "Acme Corp", "", "Initech", "", "", "Globex", "Hooli", "", "Umbrella", "", "Soylent"}
)

// SeedOptions controls a seeding pass.
type SeedOptions struct {
	Count   int
	Now     time.Time
	Horizon time.Duration
	Rand    *core.Rand
	Domain  string // email domain for generated credentials
}

// Seed creates a fresh population. Device, archetype, plan, attribution and
// company are assigned round-robin with different strides so the small
// palettes still combine into varied personas. First visits are staggered
// uniformly inside (Now, Now+Horizon].
func Seed(opts SeedOptions) []Persona {
	if opts.Horizon <= minFirstVisit {
		opts.Horizon = DefaultSeedHorizon
	}
	if opts.Rand == nil {
		opts.Rand = core.NewRand(0)
	}
	if opts.Domain == "" {
		opts.Domain = "hogflix.test"
	}

	entropy := ulid.Monotonic(opts.Rand, 0)
	ms := ulid.Timestamp(opts.Now)

	personas := make([]Persona, opts.Count)
	for i := range personas {
		id := ulid.MustNew(ms, entropy).String()
		utm := utmSources[(i*3)%len(utmSources)]
		personas[i] = Persona{
			ID:      id,
			Profile: DevicePalette[i%len(DevicePalette)],
			Traits: Traits{
				Archetype:   archetypes[(i/2)%len(archetypes)],
				PlanTier:    planTiers[(i*7)%len(planTiers)],
				UTMSource:   utm.source,
				UTMMedium:   utm.medium,
				UTMCampaign: utm.campaign,
				Company:     companies[(i*5)%len(companies)],
				Email:       fmt.Sprintf("hog+%s@%s", strings.ToLower(id[len(id)-8:]), opts.Domain),
			},
			CreatedAt:   opts.Now,
			NextVisitAt: opts.Now.Add(opts.Rand.DurationBetween(minFirstVisit, opts.Horizon)),
		}
	}
	return personas
}
