package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hogsim/internal/catalog"
	"hogsim/internal/persona"
)

// Sim is an in-memory rendition of the HogFlix site. It exposes the same
// selectors as the real app so scenarios run unchanged without Chrome.
type Sim struct {
	catalog *catalog.Catalog
	base    *url.URL

	hidden   map[string]bool
	blank    bool
	navErr   error
	navPaths []string

	mu       sync.Mutex
	opened   int
	released int
	pages    []*SimPage
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithHidden removes selectors from every page.
func WithHidden(selectors ...string) SimOption {
	return func(s *Sim) {
		for _, sel := range selectors {
			s.hidden[sel] = true
		}
	}
}

// WithBlankPages renders pages with no matching elements at all.
func WithBlankPages() SimOption {
	return func(s *Sim) { s.blank = true }
}

// WithNavigateError makes navigation to any path with one of the given
// prefixes fail with err. No prefixes means every navigation fails.
func WithNavigateError(err error, pathPrefixes ...string) SimOption {
	return func(s *Sim) {
		s.navErr = err
		s.navPaths = pathPrefixes
	}
}

// NewSim returns a simulated site rooted at baseURL.
func NewSim(cat *catalog.Catalog, baseURL string, opts ...SimOption) (*Sim, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	s := &Sim{catalog: cat, base: base, hidden: map[string]bool{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open implements Driver. Unreadable state starts a fresh actor.
func (s *Sim) Open(ctx context.Context, profile persona.DeviceProfile, state []byte) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &SimPage{
		site:    s,
		profile: profile,
		state:   simState{Cookies: map[string]string{}, LocalStorage: map[string]string{}},
		form:    map[string]string{},
	}
	if len(state) > 0 {
		var restored simState
		if err := json.Unmarshal(state, &restored); err == nil {
			if restored.Cookies != nil {
				p.state.Cookies = restored.Cookies
			}
			if restored.LocalStorage != nil {
				p.state.LocalStorage = restored.LocalStorage
			}
			p.restored = true
		}
	}

	s.mu.Lock()
	s.opened++
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return p, nil
}

// Opened is the number of pages opened so far.
func (s *Sim) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Released is the number of pages closed so far.
func (s *Sim) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Pages returns every page opened so far.
func (s *Sim) Pages() []*SimPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*SimPage(nil), s.pages...)
}

type simState struct {
	Cookies      map[string]string `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage"`
}

// Click records one simulated click.
type Click struct {
	Selector string
	Index    int
	Jitter   Point
	At       time.Time
}

// SimPage is a Page on the simulated site.
type SimPage struct {
	site     *Sim
	profile  persona.DeviceProfile
	state    simState
	restored bool
	current  *url.URL
	form     map[string]string
	history  []string
	clicks   []Click
	closed   bool
}

// Restored reports whether the page started from a previous snapshot.
func (p *SimPage) Restored() bool { return p.restored }

// History returns every visited URL in order.
func (p *SimPage) History() []string { return append([]string(nil), p.history...) }

// Clicks returns every click in order.
func (p *SimPage) Clicks() []Click { return append([]Click(nil), p.clicks...) }

// Closed reports whether Close was called.
func (p *SimPage) Closed() bool { return p.closed }

// Profile returns the device profile the page was opened with.
func (p *SimPage) Profile() persona.DeviceProfile { return p.profile }

func (p *SimPage) Navigate(ctx context.Context, rawURL string) error {
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	target := p.site.base.ResolveReference(ref)
	if p.site.navErr != nil && p.site.failsOn(target.Path) {
		return fmt.Errorf("navigating to %s: %w", target.Path, p.site.navErr)
	}

	p.current = target
	p.form = map[string]string{}
	p.history = append(p.history, target.String())

	visits, _ := strconv.Atoi(p.state.Cookies["hf_pageviews"])
	p.state.Cookies["hf_pageviews"] = strconv.Itoa(visits + 1)
	p.state.LocalStorage["hf_last_path"] = target.Path
	return nil
}

func (s *Sim) failsOn(path string) bool {
	if len(s.navPaths) == 0 {
		return true
	}
	for _, prefix := range s.navPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *SimPage) URL() string {
	if p.current == nil {
		return "about:blank"
	}
	return p.current.String()
}

func (p *SimPage) path() string {
	if p.current == nil {
		return ""
	}
	return p.current.Path
}

func (p *SimPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.elements(selector)) == 0 {
		return fmt.Errorf("%w: %s after %s", ErrElementNotFound, selector, timeout)
	}
	return nil
}

func (p *SimPage) Query(ctx context.Context, selector string) ([]Element, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.elements(selector), nil
}

func (p *SimPage) Click(ctx context.Context, selector string, index int, jitter Point) error {
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	els := p.elements(selector)
	if index < 0 || index >= len(els) {
		return fmt.Errorf("%w: %s[%d]", ErrElementNotFound, selector, index)
	}
	el := els[index]
	p.clicks = append(p.clicks, Click{Selector: selector, Index: index, Jitter: jitter})

	switch selector {
	case SelSection:
		return p.Navigate(ctx, "/browse?section="+url.QueryEscape(el.Attr("data-section")))
	case SelContentCard:
		return p.Navigate(ctx, "/title/"+url.PathEscape(el.Attr("data-video-id")))
	case SelPlan:
		return p.Navigate(ctx, "/signup?plan="+url.QueryEscape(el.Attr("data-plan")))
	case SelSearchSubmit:
		return p.Navigate(ctx, "/search?q="+url.QueryEscape(p.form[SelSearchInput]))
	case SelSubmit:
		return p.submit(ctx)
	}
	return nil
}

func (p *SimPage) submit(ctx context.Context) error {
	email, password := p.form[SelEmailInput], p.form[SelPasswordInput]
	if email == "" || password == "" {
		return nil // client-side validation keeps the form open
	}
	switch p.path() {
	case "/signup":
		p.state.Cookies["hf_session"] = "s-" + email
		p.state.LocalStorage["hf_user"] = email
		return p.Navigate(ctx, "/profile?welcome=1")
	case "/login":
		p.state.Cookies["hf_session"] = "s-" + email
		return p.Navigate(ctx, "/browse")
	}
	return nil
}

func (p *SimPage) Fill(ctx context.Context, selector, value string) error {
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.elements(selector)) == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	p.form[selector] = value
	return nil
}

var navLinks = []string{"/", "/browse", "/pricing", "/search", "/login", "/signup", "/profile"}

func (p *SimPage) Links(ctx context.Context) ([]string, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.site.blank || p.current == nil {
		return nil, nil
	}
	paths := append([]string(nil), navLinks...)
	for _, el := range p.elements(SelContentCard) {
		paths = append(paths, "/title/"+el.Attr("data-video-id"))
	}
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, p.site.base.ResolveReference(&url.URL{Path: path}).String())
	}
	return out, nil
}

func (p *SimPage) Snapshot(ctx context.Context) ([]byte, error) {
	if p.closed {
		return nil, ErrClosed
	}
	return json.Marshal(p.state)
}

func (p *SimPage) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.site.mu.Lock()
	p.site.released++
	p.site.mu.Unlock()
	return nil
}

// elements renders the current page and returns the matches for selector.
func (p *SimPage) elements(selector string) []Element {
	if p.site.blank || p.site.hidden[selector] || p.current == nil {
		return nil
	}
	var els []Element
	add := func(text string, attrs map[string]string) {
		els = append(els, Element{Index: len(els), Text: text, Attrs: attrs})
	}
	cards := func(items []catalog.Content) {
		for _, item := range items {
			add(item.Title, map[string]string{
				"data-video-id": item.ID,
				"data-title":    item.Title,
				"data-genre":    item.Genre,
			})
		}
	}
	cat := p.site.catalog
	path := p.path()

	switch selector {
	case SelSection:
		if path == "/" || path == "/browse" {
			for _, sec := range cat.Sections {
				add(sec, map[string]string{"data-section": sec})
			}
		}
	case SelContentCard:
		switch {
		case path == "/":
			cards(cat.Items[:min(6, len(cat.Items))])
		case path == "/browse", path == "/profile":
			cards(cat.Items)
		case path == "/search":
			cards(cat.Search(p.current.Query().Get("q")))
		case strings.HasPrefix(path, "/title/"):
			cards(related(cat, strings.TrimPrefix(path, "/title/")))
		}
	case SelPlayButton:
		if strings.HasPrefix(path, "/title/") {
			if _, ok := cat.Lookup(strings.TrimPrefix(path, "/title/")); ok {
				add("Play", map[string]string{"data-action": "play"})
			}
		}
	case SelSearchInput, SelSearchSubmit:
		if path == "/" || path == "/browse" || path == "/search" {
			add("", map[string]string{"type": "search"})
		}
	case SelPlan:
		if path == "/pricing" {
			for _, plan := range []struct{ name, price string }{{"basic", "4.99"}, {"standard", "9.99"}, {"premium", "14.99"}} {
				add(strings.ToUpper(plan.name[:1])+plan.name[1:], map[string]string{"data-plan": plan.name, "data-price": plan.price})
			}
		}
	case SelRageTarget:
		if path == "/pricing" {
			add("Compare all features", map[string]string{"data-rage-target": "compare-plans"})
		}
	case SelSignupForm, SelNameInput, SelAnnoyance:
		if path == "/signup" {
			add("", map[string]string{})
		}
	case SelLoginForm:
		if path == "/login" {
			add("", map[string]string{})
		}
	case SelEmailInput, SelPasswordInput, SelSubmit:
		if path == "/signup" || path == "/login" {
			add("", map[string]string{})
		}
	}
	return els
}

func related(cat *catalog.Catalog, id string) []catalog.Content {
	current, ok := cat.Lookup(id)
	if !ok {
		return nil
	}
	var out []catalog.Content
	for _, item := range cat.Items {
		if item.ID != id && item.Genre == current.Genre {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		for _, item := range cat.Items {
			if item.ID != id {
				out = append(out, item)
			}
			if len(out) == 3 {
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
