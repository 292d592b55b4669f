// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	selAcceptAll = "#acceptAll"
	selStandard  = "#acceptStd"
	selDialog    = "#consentDialog"
	selUsername  = "#username"
	selPassword  = "#password"
	selSubmit    = "#loginbutton"

	loginURL    = "https://mail.example.test/login"
	overviewURL = "https://mail.example.test/overview"
	detailURL   = "https://mail.example.test/detail?folder=inbox"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		ConsentWaitTimeout:    100 * time.Millisecond,
		LoginFieldWaitTimeout: 100 * time.Millisecond,
		ConsentSettleDelay:    time.Millisecond,
		SubmitSettleDelay:     time.Millisecond,
		NavigationSettleDelay: time.Millisecond,
		NetworkIdleQuiet:      time.Millisecond,
		EchoTimeout:           2 * time.Second,
	}
}

func testProvider() config.ProviderConfig {
	return config.ProviderConfig{
		Name:                     "freemail",
		ConsentAcceptAllSelector: selAcceptAll,
		ConsentDialogSelector:    selDialog,
		UsernameSelector:         selUsername,
		PasswordSelector:         selPassword,
		SubmitSelector:           selSubmit,
		SessionCookieMarker:      "session",
	}
}

func testCredentials() schemas.SessionCredentials {
	return schemas.SessionCredentials{
		Username:    "alice@example.test",
		Password:    "s3cret",
		LoginURL:    loginURL,
		OverviewURL: overviewURL,
	}
}

// authenticatedJar is what a site that recognized the login would hold.
func authenticatedJar() schemas.CookieJar {
	return schemas.CookieJar{
		{Name: "websession_id", Value: "abc123", Domain: "mail.example.test", Path: "/"},
		{Name: "CookieConsent", Value: "granted", Domain: "mail.example.test", Path: "/"},
	}
}

func newTestEngine(page *mockPage) (*Engine, *mockFactory) {
	factory := &mockFactory{page: page}
	return NewEngine(factory, testEngineConfig(), zap.NewNop()), factory
}

func TestAcquireSessionHappyPathWithoutDetail(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}

	var echoCalls int
	echoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		echoCalls++
	}))
	defer echoSrv.Close()

	provider := testProvider()
	provider.ConsentHost = echoSrv.URL
	provider.ConsentConfigID = "315468"

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), provider)

	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.AttemptID)

	// Coordinate click is preferred when a box resolves.
	assert.Equal(t, 1, page.clickAts)
	assert.Equal(t, "alice@example.test", page.setValues[selUsername])
	assert.Equal(t, "s3cret", page.setValues[selPassword])
	assert.Contains(t, page.clicks, selSubmit)
	assert.Equal(t, []string{loginURL, overviewURL}, page.navigated)

	// No detail URL means no echo call.
	assert.Zero(t, echoCalls)
	assert.Equal(t, 1, page.closeCalls)
}

func TestAcquireSessionInjectsPromoCookieOnce(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())
	require.True(t, result.Success)

	var promo []schemas.CookieRecord
	for _, c := range result.Cookies {
		if c.Name == "no_postlogin_FL_-_Post_Login_315468" {
			promo = append(promo, c)
		}
	}
	require.Len(t, promo, 1)
	assert.Equal(t, "true", promo[0].Value)
	assert.Equal(t, "mail.example.test", promo[0].Domain)
	assert.Equal(t, "Lax", promo[0].SameSite)
	assert.False(t, promo[0].Secure)
	assert.False(t, promo[0].HTTPOnly)
}

func TestAcquireSessionConsentAbsentIsSoft(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.waitVisibleErr[selAcceptAll] = errors.New("timeout waiting for selector")

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.Zero(t, page.clickAts)

	var found bool
	for _, d := range result.Diagnostics {
		if containsKind(d, schemas.ErrKindConsentControlNotFound) {
			found = true
		}
	}
	assert.True(t, found, "expected a consent_control_not_found diagnostic, got %v", result.Diagnostics)
	assert.Equal(t, 1, page.closeCalls)
}

func containsKind(diag string, kind schemas.ErrorKind) bool {
	return len(diag) >= len(kind) && diag[:len(kind)] == string(kind)
}

func TestAcquireSessionLoginFormMissingIsHard(t *testing.T) {
	page := newMockPage()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
	page.waitVisibleErr[selUsername] = errors.New("timeout waiting for selector")

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, schemas.ErrKindLoginFormNotFound, result.Error.Kind)

	// Short-circuit: no value injection, no post-login navigation.
	assert.Empty(t, page.setValues)
	assert.Equal(t, []string{loginURL}, page.navigated)
	assert.Equal(t, 1, page.closeCalls)
}

func TestAcquireSessionIncompleteCredentialsNeverLaunchesBrowser(t *testing.T) {
	page := newMockPage()
	eng, factory := newTestEngine(page)

	creds := testCredentials()
	creds.Password = ""
	provider := testProvider()
	provider.LoginURL = "" // no defaults to fall back on either

	start := time.Now()
	result := eng.AcquireSession(context.Background(), creds, provider)

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, schemas.ErrKindIncompleteCredentials, result.Error.Kind)
	assert.Zero(t, factory.created)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireSessionEchoesConsentWithDetailReferer(t *testing.T) {
	type echoCall struct {
		referer   string
		uaHeader  string
		refHeader string
		nocache   int64
	}
	var calls []echoCall
	echoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nocache, _ := strconv.ParseInt(r.URL.Query().Get("nocache"), 10, 64)
		calls = append(calls, echoCall{
			referer:   r.URL.Query().Get("referer"),
			uaHeader:  r.Header.Get("User-Agent"),
			refHeader: r.Header.Get("Referer"),
			nocache:   nocache,
		})
	}))
	defer echoSrv.Close()

	provider := testProvider()
	provider.ConsentHost = echoSrv.URL
	provider.ConsentConfigID = "315468"

	creds := testCredentials()
	creds.DetailURL = detailURL

	runOnce := func() {
		page := newMockPage()
		page.baseCookies = authenticatedJar()
		page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
		eng, _ := newTestEngine(page)
		result := eng.AcquireSession(context.Background(), creds, provider)
		require.True(t, result.Success)
		assert.Contains(t, page.removedNodes, selDialog)
	}

	runOnce()
	time.Sleep(2 * time.Millisecond)
	runOnce()

	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, detailURL, c.referer)
		assert.Equal(t, detailURL, c.refHeader)
		assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64) TestShell/1.0", c.uaHeader)
		assert.Positive(t, c.nocache)
	}
	assert.Greater(t, calls[1].nocache, calls[0].nocache)
}

func TestAcquireSessionEchoFailureIsSoft(t *testing.T) {
	echoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer echoSrv.Close()

	provider := testProvider()
	provider.ConsentHost = echoSrv.URL

	creds := testCredentials()
	creds.DetailURL = detailURL

	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), creds, provider)

	assert.True(t, result.Success)
	var found bool
	for _, d := range result.Diagnostics {
		if containsKind(d, schemas.ErrKindConsentEchoFailed) {
			found = true
		}
	}
	assert.True(t, found, "expected a consent_echo_failed diagnostic, got %v", result.Diagnostics)
}

func TestAcquireSessionConsentFallsBackToElementClick(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	// No bounding box scripted: coordinate click unavailable.

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	require.True(t, result.Success)
	assert.Zero(t, page.clickAts)
	assert.Contains(t, page.clicks, selAcceptAll)
}

func TestAcquireSessionSecondaryConsentButton(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
	page.boundingBoxes[selStandard] = &schemas.Box{X: 10, Y: 80, Width: 100, Height: 40}

	provider := testProvider()
	provider.ConsentStandardSelector = selStandard

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), provider)

	require.True(t, result.Success)
	assert.Equal(t, 2, page.clickAts)
}

func TestAcquireSessionReleasesPageExactlyOnceOnEveryFailure(t *testing.T) {
	cases := []struct {
		name   string
		script func(p *mockPage)
	}{
		{"login navigation fails", func(p *mockPage) {
			p.navigateErr[loginURL] = errors.New("net::ERR_CONNECTION_REFUSED")
		}},
		{"username field missing", func(p *mockPage) {
			p.waitVisibleErr[selUsername] = errors.New("timeout")
		}},
		{"cookie export fails", func(p *mockPage) {
			p.cookiesErr = errors.New("target closed")
		}},
		{"panic while typing", func(p *mockPage) {
			p.panicOn = "SetValue"
		}},
		{"panic during submit", func(p *mockPage) {
			p.panicOn = "Click"
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := newMockPage()
			page.baseCookies = authenticatedJar()
			tc.script(page)

			eng, _ := newTestEngine(page)
			result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.True(t, result.Error.Kind.Fatal())
			assert.Equal(t, 1, page.closeCalls)
		})
	}
}

func TestAcquireSessionForInspectionKeepsPageOpen(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}

	eng, _ := newTestEngine(page)
	result, open := eng.AcquireSessionForInspection(context.Background(), testCredentials(), testProvider())

	require.True(t, result.Success)
	require.NotNil(t, open, "successful inspection run must hand the page back")
	assert.Zero(t, page.closeCalls, "page must stay open until the caller releases it")

	require.NoError(t, open.Close(context.Background()))
	assert.Equal(t, 1, page.closeCalls)
}

func TestAcquireSessionForInspectionReleasesPageOnFailure(t *testing.T) {
	page := newMockPage()
	page.waitVisibleErr[selUsername] = errors.New("timeout")

	eng, _ := newTestEngine(page)
	result, open := eng.AcquireSessionForInspection(context.Background(), testCredentials(), testProvider())

	assert.False(t, result.Success)
	assert.Nil(t, open)
	assert.Equal(t, 1, page.closeCalls)
}

func TestNetworkIdleWaitsCarryDeadlines(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())
	require.True(t, result.Success)

	// Post-submit and per-hop idle waits alike must be bounded, or a page
	// holding a long-poll connection would stall the attempt on a
	// deadline-free caller context.
	require.GreaterOrEqual(t, len(page.idleDeadlines), 2)
	for i, hasDeadline := range page.idleDeadlines {
		assert.True(t, hasDeadline, "idle wait %d ran without a deadline", i)
	}
}

func TestAcquireSessionNavigationFailureIsPlainDiagnostic(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
	page.navigateErr[overviewURL] = errors.New("net::ERR_CONNECTION_RESET")

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	require.Nil(t, result.Error)
	assert.True(t, result.Success)

	var found bool
	for _, d := range result.Diagnostics {
		assert.False(t, containsKind(d, schemas.ErrKindUnexpectedNavigationTarget),
			"transport failure must not read as a wrong landing target: %s", d)
		if strings.Contains(d, "navigating to "+overviewURL+" failed") {
			found = true
		}
	}
	assert.True(t, found, "expected a navigation-failure diagnostic, got %v", result.Diagnostics)
}

func TestAcquireSessionDialogRemovalFailureIsSoft(t *testing.T) {
	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
	page.removeNodeErr = errors.New("node detached")

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.Contains(t, page.removedNodes, selDialog)
	assert.Equal(t, 1, page.closeCalls)
}

func TestAcquireSessionPanicReportsDriverFailure(t *testing.T) {
	page := newMockPage()
	page.panicOn = "Navigate"

	eng, _ := newTestEngine(page)
	result := eng.AcquireSession(context.Background(), testCredentials(), testProvider())

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, schemas.ErrKindDriverFailure, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "panic")
	assert.Equal(t, 1, page.closeCalls)
}

func TestFetchAuthenticatedPage(t *testing.T) {
	target := "https://mail.example.test/messages/42"

	page := newMockPage()
	page.baseCookies = authenticatedJar()
	page.boundingBoxes[selAcceptAll] = &schemas.Box{X: 10, Y: 20, Width: 100, Height: 40}
	page.htmlContent = "<html><body>message body</body></html>"

	eng, _ := newTestEngine(page)
	result := eng.FetchAuthenticatedPage(context.Background(), testCredentials(), testProvider(), target)

	require.Empty(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "<html><body>message body</body></html>", result.HTML)
	assert.Equal(t, []string{loginURL, overviewURL, target}, page.navigated)
	assert.Equal(t, 1, page.closeCalls)
}

func TestFetchAuthenticatedPageRequiresTarget(t *testing.T) {
	page := newMockPage()
	eng, factory := newTestEngine(page)

	result := eng.FetchAuthenticatedPage(context.Background(), testCredentials(), testProvider(), "")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, factory.created)
}

func TestFetchAuthenticatedPagePropagatesHardFailure(t *testing.T) {
	page := newMockPage()
	page.waitVisibleErr[selUsername] = errors.New("timeout")

	eng, _ := newTestEngine(page)
	result := eng.FetchAuthenticatedPage(context.Background(), testCredentials(), testProvider(), "https://mail.example.test/messages/42")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, string(schemas.ErrKindLoginFormNotFound))
	assert.Equal(t, 1, page.closeCalls)
}

func TestBuildConsentEchoURL(t *testing.T) {
	u := buildConsentEchoURL("consent.cookiebot.com", "315468", detailURL, 1700000000000)
	assert.Equal(t,
		"https://consent.cookiebot.com/logconsent.ashx?action=accept&nocache=1700000000000&dnt=false&method=strict&clp=true&cls=true&clm=true&cbid=315468&cbt=leveloptin&hasdata=true&usercountry=DE&referer=https%3A%2F%2Fmail.example.test%2Fdetail%3Ffolder%3Dinbox&rc=false",
		u)

	// An explicit scheme is kept as-is, which lets a plain-HTTP host stand
	// in during development.
	u = buildConsentEchoURL("http://127.0.0.1:9999", "315468", detailURL, 1)
	assert.Contains(t, u, "http://127.0.0.1:9999/logconsent.ashx?action=accept&nocache=1&")
}

func TestWriteCookieArtifact(t *testing.T) {
	path := t.TempDir() + "/cookies.json"
	jar := authenticatedJar()

	require.NoError(t, WriteCookieArtifact(path, jar))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "websession_id")
	assert.Contains(t, string(data), "CookieConsent")
}
