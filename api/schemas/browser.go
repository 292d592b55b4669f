// api/schemas/browser.go
package schemas

import (
	"context"
	"time"
)

// Box is an element's on-screen bounding box in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box, the preferred click target.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// PageDriver is the browser-automation seam consumed by the acquisition
// engine. One PageDriver owns one page (tab) for the lifetime of one
// attempt. Implementations must make Close idempotent; the engine relies on
// that for its guaranteed-release discipline.
type PageDriver interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element or
	// the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// BoundingBox resolves the on-screen box of the first element matching
	// the selector. A hidden or zero-size element yields an error.
	BoundingBox(ctx context.Context, selector string) (*Box, error)

	// ClickAt dispatches a synthetic pointer click at viewport coordinates.
	ClickAt(ctx context.Context, x, y float64) error

	// Click dispatches a programmatic click on the first match.
	Click(ctx context.Context, selector string) error

	// SetValue writes an input's value directly, without per-key typing.
	SetValue(ctx context.Context, selector, value string) error

	// RemoveNode deletes the first matching node from the DOM. Removing a
	// node that does not exist is a no-op, never an error.
	RemoveNode(ctx context.Context, selector string) error

	// Cookies reads the full cookie jar of the browser context.
	Cookies(ctx context.Context) (CookieJar, error)

	// SetCookie writes a single cookie into the browser context.
	SetCookie(ctx context.Context, cookie CookieRecord) error

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	// UserAgent reads the live user agent string from the page.
	UserAgent(ctx context.Context) (string, error)

	// WaitNetworkIdle blocks until no network activity has been observed
	// for the quiet period, or ctx is done.
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error

	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)

	// Close releases the page. Safe to call more than once.
	Close(ctx context.Context) error
}

// DriverFactory creates one fresh page per acquisition attempt.
type DriverFactory interface {
	NewPage(ctx context.Context) (PageDriver, error)
}
