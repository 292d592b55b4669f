// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// Page is the chromedp-backed implementation of schemas.PageDriver. One Page
// wraps one browser tab and lives for one acquisition attempt.
type Page struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	watcher    *netWatcher
	navTimeout time.Duration

	closeOnce sync.Once
	onClose   func()
}

// Ensure Page implements the driver contract.
var _ schemas.PageDriver = (*Page)(nil)

// runActions executes chromedp actions, respecting both the page lifetime
// (p.ctx) and the incoming request context.
func (p *Page) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// ID returns the unique identifier for the page.
func (p *Page) ID() string {
	return p.id
}

// Navigate loads a URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.runActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible element or the
// timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.runActions(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("element %q not visible within %s: %w", selector, timeout, err)
	}
	return nil
}

// BoundingBox resolves the on-screen box of the first match. Elements that
// are hidden or have zero size yield an error, signaling the caller to fall
// back to a programmatic click.
func (p *Page) BoundingBox(ctx context.Context, selector string) (*schemas.Box, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return null; }
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, strconv.Quote(selector))

	var box *schemas.Box
	if err := p.runActions(ctx, chromedp.Evaluate(script, &box)); err != nil {
		return nil, fmt.Errorf("bounding box query for %q failed: %w", selector, err)
	}
	if box == nil {
		return nil, fmt.Errorf("element %q not present in DOM", selector)
	}
	if box.Width == 0 || box.Height == 0 {
		return nil, fmt.Errorf("element %q has no renderable box", selector)
	}
	return box, nil
}

// ClickAt dispatches a synthetic pointer click at viewport coordinates.
func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	if err := p.runActions(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("coordinate click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// Click dispatches a programmatic click on the first match. Unlike a pointer
// click this works on elements that are covered by an overlay stack.
func (p *Page) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.click();
		return true;
	})()`, strconv.Quote(selector))

	var clicked bool
	if err := p.runActions(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("element %q not present in DOM", selector)
	}
	return nil
}

// SetValue writes an input's value directly and fires the input and change
// events frameworks listen for. No per-keystroke typing.
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(value))

	var set bool
	if err := p.runActions(ctx, chromedp.Evaluate(script, &set)); err != nil {
		return fmt.Errorf("setting value on %q failed: %w", selector, err)
	}
	if !set {
		return fmt.Errorf("input %q not present in DOM", selector)
	}
	return nil
}

// RemoveNode deletes the first matching node from the DOM. A missing node is
// a no-op, never an error.
func (p *Page) RemoveNode(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		document.querySelector(%s)?.remove();
		return true;
	})()`, strconv.Quote(selector))

	var done bool
	if err := p.runActions(ctx, chromedp.Evaluate(script, &done)); err != nil {
		return fmt.Errorf("removing node %q failed: %w", selector, err)
	}
	return nil
}

// Cookies reads the full cookie jar of the browser context via CDP.
func (p *Page) Cookies(ctx context.Context) (schemas.CookieJar, error) {
	var cookies []*network.Cookie
	err := p.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies failed: %w", err)
	}

	jar := make(schemas.CookieJar, 0, len(cookies))
	for _, c := range cookies {
		jar = append(jar, schemas.CookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return jar, nil
}

// SetCookie writes a single cookie into the browser context.
func (p *Page) SetCookie(ctx context.Context, cookie schemas.CookieRecord) error {
	path := cookie.Path
	if path == "" {
		path = "/"
	}

	err := p.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		params := network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(path).
			WithHTTPOnly(cookie.HTTPOnly).
			WithSecure(cookie.Secure)
		if ss := toCDPSameSite(cookie.SameSite); ss != "" {
			params = params.WithSameSite(ss)
		}
		return params.Do(c)
	}))
	if err != nil {
		return fmt.Errorf("setting cookie %q failed: %w", cookie.Name, err)
	}
	return nil
}

// Location returns the page's current URL.
func (p *Page) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location failed: %w", err)
	}
	return url, nil
}

// UserAgent reads the live user agent string from the page.
func (p *Page) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := p.runActions(ctx, chromedp.Evaluate(`navigator.userAgent`, &ua)); err != nil {
		return "", fmt.Errorf("reading user agent failed: %w", err)
	}
	return ua, nil
}

// WaitNetworkIdle blocks until no network activity has been observed for the
// quiet period.
func (p *Page) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	idleCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return p.watcher.WaitNetworkIdle(idleCtx, quiet)
}

// HTML returns the rendered document markup.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capturing document markup failed: %w", err)
	}
	return html, nil
}

// Close releases the tab. Safe to call more than once.
func (p *Page) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		p.logger.Debug("Closing page.")
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// toCDPSameSite maps the schema's string form onto the CDP enumeration.
func toCDPSameSite(s string) network.CookieSameSite {
	switch s {
	case "Strict":
		return network.CookieSameSiteStrict
	case "Lax":
		return network.CookieSameSiteLax
	case "None":
		return network.CookieSameSiteNone
	}
	return ""
}
