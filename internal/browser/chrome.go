package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"hogsim/internal/logging"
	"hogsim/internal/persona"
)

// ChromeConfig configures the headless Chrome driver.
type ChromeConfig struct {
	ExecPath string // empty uses chromedp's lookup
	Headless bool
	Logger   *zap.Logger
}

// Chrome opens one browser process per persona so cookies, storage and
// cache never leak between simulated users.
type Chrome struct {
	cfg ChromeConfig
	log *zap.Logger
}

func NewChrome(cfg ChromeConfig) *Chrome {
	return &Chrome{cfg: cfg, log: logging.OrNop(cfg.Logger)}
}

type chromeCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

type chromeState struct {
	Cookies      []chromeCookie    `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage"`
}

// Open starts a browser, applies the device profile and restores state.
func (c *Chrome) Open(ctx context.Context, profile persona.DeviceProfile, state []byte) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.UserAgent(profile.UserAgent),
		chromedp.WindowSize(profile.Viewport.Width, profile.Viewport.Height),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	p := &chromePage{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		log: c.log,
	}

	var restored chromeState
	if len(state) > 0 {
		if err := json.Unmarshal(state, &restored); err != nil {
			c.log.Warn("discarding unreadable browser state", zap.Error(err))
			restored = chromeState{}
		}
	}
	p.pendingStorage = restored.LocalStorage

	setup := []chromedp.Action{
		emulation.SetUserAgentOverride(profile.UserAgent).WithAcceptLanguage(profile.Locale),
		chromedp.EmulateViewport(int64(profile.Viewport.Width), int64(profile.Viewport.Height)),
	}
	if profile.Timezone != "" {
		setup = append(setup, emulation.SetTimezoneOverride(profile.Timezone))
	}
	if profile.Locale != "" {
		setup = append(setup, emulation.SetLocaleOverride().WithLocale(strings.ReplaceAll(profile.Locale, "-", "_")))
	}
	if len(restored.Cookies) > 0 {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(cookieParams(restored.Cookies)).Do(ctx)
		}))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		p.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	return p, nil
}

func cookieParams(cookies []chromeCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		param := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			param.Expires = &exp
		}
		params = append(params, param)
	}
	return params
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	pendingStorage map[string]string
	url            string

	closeOnce sync.Once
	closed    bool
}

// run executes actions in the tab, stopping early when ctx is cancelled.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, p.cancel)
	defer stop()
	return chromedp.Run(p.ctx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if len(p.pendingStorage) > 0 {
		data, err := json.Marshal(p.pendingStorage)
		if err != nil {
			return err
		}
		var ok bool
		actions = append(actions, chromedp.Evaluate(fmt.Sprintf(
			`(() => { const s = %s; for (const k in s) localStorage.setItem(k, s[k]); return true })()`, data), &ok))
	}
	var loc string
	actions = append(actions, chromedp.Location(&loc))
	if err := p.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	p.pendingStorage = nil
	p.url = loc
	return nil
}

func (p *chromePage) URL() string {
	if p.url == "" {
		return "about:blank"
	}
	return p.url
}

func (p *chromePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	waitCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrElementNotFound, selector, timeout)
	}
	return err
}

type jsElement struct {
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
}

func (p *chromePage) Query(ctx context.Context, selector string) ([]Element, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var raw []jsElement
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => ({
		text: (el.innerText || el.value || "").trim().slice(0, 200),
		attrs: Object.fromEntries(Array.from(el.attributes).map(a => [a.name, a.value]))
	}))`, sel)
	if err := p.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, fmt.Errorf("querying %s: %w", selector, err)
	}
	out := make([]Element, len(raw))
	for i, el := range raw {
		out[i] = Element{Index: i, Text: el.Text, Attrs: el.Attrs}
	}
	return out, nil
}

type rect struct {
	X, Y, Width, Height float64
	Found               bool
}

func (p *chromePage) Click(ctx context.Context, selector string, index int, jitter Point) error {
	sel, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var r rect
	script := fmt.Sprintf(`(() => {
		const el = document.querySelectorAll(%s)[%d];
		if (!el) return {Found: false};
		el.scrollIntoView({block: "center"});
		const r = el.getBoundingClientRect();
		return {X: r.x, Y: r.y, Width: r.width, Height: r.height, Found: true};
	})()`, sel, index)
	if err := p.run(ctx, chromedp.Evaluate(script, &r)); err != nil {
		return fmt.Errorf("locating %s: %w", selector, err)
	}
	if !r.Found {
		return fmt.Errorf("%w: %s[%d]", ErrElementNotFound, selector, index)
	}

	x := r.X + r.Width/2 + clamp(jitter.X, r.Width/2)
	y := r.Y + r.Height/2 + clamp(jitter.Y, r.Height/2)
	var loc string
	if err := p.run(ctx, chromedp.MouseClickXY(x, y), chromedp.Location(&loc)); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	p.url = loc
	return nil
}

// clamp keeps a jitter offset inside the element's half-extent.
func clamp(v, limit float64) float64 {
	if limit <= 1 {
		return 0
	}
	limit--
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	sel, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var count int
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, sel), &count)); err != nil {
		return fmt.Errorf("locating %s: %w", selector, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	err = p.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("filling %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Links(ctx context.Context) ([]string, error) {
	var links []string
	script := `Array.from(new Set(Array.from(document.querySelectorAll("a[href]")).map(a => a.href)))`
	if err := p.run(ctx, chromedp.Evaluate(script, &links)); err != nil {
		return nil, fmt.Errorf("collecting links: %w", err)
	}
	return links, nil
}

func (p *chromePage) Snapshot(ctx context.Context) ([]byte, error) {
	var (
		cookies []*network.Cookie
		storage map[string]string
	)
	err := p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(`(() => { try { return Object.assign({}, localStorage) } catch (e) { return {} } })()`, &storage),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing browser state: %w", err)
	}

	st := chromeState{LocalStorage: storage}
	for _, ck := range cookies {
		st.Cookies = append(st.Cookies, chromeCookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		})
	}
	return json.Marshal(st)
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.closed = true
		p.cancel()
	})
	return nil
}
