package events

// Event names emitted by the simulator.
const (
	Pageview         = "$pageview"
	BrowseCatalog    = "browse_catalog"
	TitleOpened      = "title_opened"
	VideoPlay        = "video_play"
	VideoProgress    = "video_progress"
	VideoComplete    = "video_complete"
	RageClickStarted = "rage_click_started"
	RageClickAttempt = "rage_click_attempt"
	RageClickAbandon = "rage_click_abandoned"
	Search           = "search"
	SignupStarted    = "signup_started"
	SignupAnnoyance  = "signup_annoyance"
	SignupCompleted  = "signup_completed"
	PlanSelected     = "plan_selected"
	PricingAbandoned = "pricing_abandoned"
	CheckoutStarted  = "checkout_started"
	Login            = "login"
)
