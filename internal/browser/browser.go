// Package browser provides the isolated actor context a persona drives during
// a visit. A Driver opens one Page per persona; the Page is released with
// Close on every exit path and its Snapshot is the persona's persisted state.
package browser

import (
	"context"
	"errors"
	"time"

	"hogsim/internal/persona"
)

var (
	// ErrElementNotFound means a selector matched nothing within the wait.
	ErrElementNotFound = errors.New("element not found")
	// ErrClosed is returned by every Page method after Close.
	ErrClosed = errors.New("page closed")
)

// Selectors shared by the HogFlix app and the simulated site.
const (
	SelSection       = "[data-section]"
	SelContentCard   = "[data-video-id]"
	SelPlayButton    = "[data-action=play]"
	SelSearchInput   = "input[type=search]"
	SelSearchSubmit  = "[data-action=search]"
	SelPlan          = "[data-plan]"
	SelRageTarget    = "[data-rage-target]"
	SelSignupForm    = "form[data-form=signup]"
	SelLoginForm     = "form[data-form=login]"
	SelNameInput     = "input[name=name]"
	SelEmailInput    = "input[name=email]"
	SelPasswordInput = "input[name=password]"
	SelSubmit        = "button[type=submit]"
	SelAnnoyance     = "[data-annoyance]"
)

// Point is a click offset in CSS pixels from an element's centre.
type Point struct {
	X, Y float64
}

// Element is a snapshot of one matched DOM node.
type Element struct {
	Index int
	Text  string
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Element) Attr(name string) string {
	return e.Attrs[name]
}

// Page is one persona's browser context. Methods are not safe for concurrent
// use; a scenario drives its page sequentially.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	// WaitFor blocks until selector matches or timeout elapses, in which case
	// it returns ErrElementNotFound.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Query(ctx context.Context, selector string) ([]Element, error)
	// Click clicks the index-th match of selector, offset by jitter.
	Click(ctx context.Context, selector string, index int, jitter Point) error
	Fill(ctx context.Context, selector, value string) error
	Links(ctx context.Context) ([]string, error)
	// Snapshot serialises cookies and storage so a later Open can restore them.
	Snapshot(ctx context.Context) ([]byte, error)
	// Close releases the context. It is idempotent.
	Close() error
}

// Driver opens isolated pages. state is a previous Snapshot or nil for a
// fresh actor.
type Driver interface {
	Open(ctx context.Context, profile persona.DeviceProfile, state []byte) (Page, error)
}
