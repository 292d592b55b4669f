// internal/engine/echo.go
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// echoConsent replays the consent-logging call the page's own JS would have
// issued, because that logging does not fire reliably under automation. The
// call reproduces a real browser's headers: the user agent is read live
// from the page and the referer is the just-visited detail URL. It is
// best-effort end to end, nothing in here can fail the acquisition.
// The residual consent dialog node is removed afterwards either way.
func (e *Engine) echoConsent(ctx context.Context, at *attempt) {
	defer e.removeConsentDialog(ctx, at)

	if !at.consent.Accepted() {
		at.logger.Debug("Consent was not actively accepted, skipping echo.")
		return
	}
	if at.creds.DetailURL == "" || at.provider.ConsentHost == "" {
		at.logger.Debug("No detail URL or consent host configured, skipping echo.")
		return
	}

	userAgent, err := at.page.UserAgent(ctx)
	if err != nil {
		at.diag(schemas.ErrKindConsentEchoFailed, "reading live user agent: %v", err)
		return
	}

	endpoint := buildConsentEchoURL(at.provider.ConsentHost, at.provider.ConsentConfigID,
		at.creds.DetailURL, time.Now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		at.diag(schemas.ErrKindConsentEchoFailed, "building echo request: %v", err)
		return
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", at.creds.DetailURL)

	resp, err := e.echo.Do(req)
	if err != nil {
		at.diag(schemas.ErrKindConsentEchoFailed, "echo request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		at.diag(schemas.ErrKindConsentEchoFailed, "echo endpoint returned status %d", resp.StatusCode)
		return
	}
	at.logger.Debug("Consent echo delivered.", zap.String("endpoint", endpoint))
}

// buildConsentEchoURL assembles the logconsent call with its parameters in
// the order the site's own script emits them. The nocache value is the
// caller's epoch-millisecond timestamp, so it increases across runs.
func buildConsentEchoURL(host, configID, detailURL string, nocacheMillis int64) string {
	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return fmt.Sprintf(
		"%s/logconsent.ashx?action=accept&nocache=%d&dnt=false&method=strict&clp=true&cls=true&clm=true&cbid=%s&cbt=leveloptin&hasdata=true&usercountry=DE&referer=%s&rc=false",
		strings.TrimRight(base, "/"), nocacheMillis, configID, url.QueryEscape(detailURL))
}

// removeConsentDialog deletes any residual consent dialog node. The driver
// treats a missing node as a no-op, so this is idempotent.
func (e *Engine) removeConsentDialog(ctx context.Context, at *attempt) {
	if at.provider.ConsentDialogSelector == "" {
		return
	}
	if err := at.page.RemoveNode(ctx, at.provider.ConsentDialogSelector); err != nil {
		at.logger.Debug("Removing residual consent dialog failed.", zap.Error(err))
	}
}
