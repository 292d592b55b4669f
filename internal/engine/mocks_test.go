// internal/engine/mocks_test.go
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// mockPage is a scripted PageDriver. Behavior is keyed by selector so a
// test can make individual controls visible, hidden, or broken.
type mockPage struct {
	mu sync.Mutex

	// Scripted behavior.
	waitVisibleErr map[string]error
	boundingBoxes  map[string]*schemas.Box
	navigateErr    map[string]error
	clickErr       map[string]error
	clickAtErr     error
	cookiesErr     error
	removeNodeErr  error
	baseCookies    schemas.CookieJar
	location       string
	userAgent      string
	htmlContent    string
	panicOn        string

	// Recorded interactions.
	navigated    []string
	setValues    map[string]string
	clicks       []string
	clickAts     int
	removedNodes []string
	setCookies   []schemas.CookieRecord
	closeCalls   int

	// One entry per WaitNetworkIdle call, true when the ctx carried a
	// deadline.
	idleDeadlines []bool
}

func newMockPage() *mockPage {
	return &mockPage{
		waitVisibleErr: map[string]error{},
		boundingBoxes:  map[string]*schemas.Box{},
		navigateErr:    map[string]error{},
		clickErr:       map[string]error{},
		setValues:      map[string]string{},
		userAgent:      "Mozilla/5.0 (X11; Linux x86_64) TestShell/1.0",
		htmlContent:    "<html><body>ok</body></html>",
	}
}

func (m *mockPage) maybePanic(method string) {
	if m.panicOn == method {
		panic("scripted panic in " + method)
	}
}

func (m *mockPage) Navigate(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybePanic("Navigate")
	m.navigated = append(m.navigated, url)
	m.location = url
	return m.navigateErr[url]
}

func (m *mockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybePanic("WaitVisible")
	return m.waitVisibleErr[selector]
}

func (m *mockPage) BoundingBox(ctx context.Context, selector string) (*schemas.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if box, ok := m.boundingBoxes[selector]; ok {
		return box, nil
	}
	return nil, errors.New("element has no bounding box")
}

func (m *mockPage) ClickAt(ctx context.Context, x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clickAts++
	return m.clickAtErr
}

func (m *mockPage) Click(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybePanic("Click")
	m.clicks = append(m.clicks, selector)
	return m.clickErr[selector]
}

func (m *mockPage) SetValue(ctx context.Context, selector, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybePanic("SetValue")
	m.setValues[selector] = value
	return nil
}

func (m *mockPage) RemoveNode(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedNodes = append(m.removedNodes, selector)
	return m.removeNodeErr
}

func (m *mockPage) Cookies(ctx context.Context) (schemas.CookieJar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cookiesErr != nil {
		return nil, m.cookiesErr
	}
	jar := append(schemas.CookieJar{}, m.baseCookies...)
	jar = append(jar, m.setCookies...)
	return jar, nil
}

func (m *mockPage) SetCookie(ctx context.Context, cookie schemas.CookieRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCookies = append(m.setCookies, cookie)
	return nil
}

func (m *mockPage) Location(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location, nil
}

func (m *mockPage) UserAgent(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgent, nil
}

func (m *mockPage) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybePanic("WaitNetworkIdle")
	_, hasDeadline := ctx.Deadline()
	m.idleDeadlines = append(m.idleDeadlines, hasDeadline)
	return nil
}

func (m *mockPage) HTML(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.htmlContent, nil
}

func (m *mockPage) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// mockFactory hands out a single scripted page and counts creations.
type mockFactory struct {
	mu      sync.Mutex
	page    *mockPage
	err     error
	created int
}

func (f *mockFactory) NewPage(ctx context.Context) (schemas.PageDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	return f.page, nil
}
