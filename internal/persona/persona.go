// Package persona holds the long-lived simulated identities and the store
// that persists them between runs.
package persona

import (
	"time"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceProfile is fixed when a persona is created and never changes.
type DeviceProfile struct {
	UserAgent string   `json:"user_agent"`
	Viewport  Viewport `json:"viewport"`
	Locale    string   `json:"locale"`
	Timezone  string   `json:"timezone"`
}

// Traits are persona-derived attributes exposed to the behaviour policy.
type Traits struct {
	Archetype   string `json:"archetype"`
	PlanTier    string `json:"plan_tier"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	Company     string `json:"company,omitempty"`
	Email       string `json:"email"`
}

// Persona is one simulated user.
//
// ActorState is the opaque browser snapshot (cookies, local storage) owned
// by the session runner: written after each visit, read before the next,
// empty before the first visit.
type Persona struct {
	ID          string        `json:"id"`
	Profile     DeviceProfile `json:"device_profile"`
	Traits      Traits        `json:"traits"`
	CreatedAt   time.Time     `json:"created_at"`
	NextVisitAt time.Time     `json:"next_visit_at"`
	LastVisitAt time.Time     `json:"last_visit_at"`
	Visits      int           `json:"visits"`
	ActorState  []byte        `json:"actor_state,omitempty"`
}

// Due reports whether the persona should visit at now.
func (p *Persona) Due(now time.Time) bool {
	return !p.NextVisitAt.After(now)
}

// Fresh reports whether the persona has no saved browser state yet.
func (p *Persona) Fresh() bool {
	return len(p.ActorState) == 0
}
