// internal/engine/consent.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// secondaryConsentWait bounds the check for the late "standard accept"
// button. Its absence is the normal case, so the wait stays short.
const secondaryConsentWait = 2 * time.Second

// resolveConsent detects and dismisses the consent gate on the current
// page. Only the initial wait for the accept-all control is bounded by the
// long consent timeout; whether a consent cookie actually materialized
// afterwards is advisory. The site may legitimately show no gate at all, so
// nothing in here is a hard failure.
func (e *Engine) resolveConsent(ctx context.Context, at *attempt) {
	sel := at.provider.ConsentAcceptAllSelector
	if sel == "" {
		at.consent = schemas.ConsentNotPresent
		return
	}

	if err := at.page.WaitVisible(ctx, sel, e.cfg.ConsentWaitTimeout); err != nil {
		at.consent = schemas.ConsentNotPresent
		at.diag(schemas.ErrKindConsentControlNotFound,
			"consent control %q did not appear within %s: %v", sel, e.cfg.ConsentWaitTimeout, err)
		return
	}

	at.consent = e.clickConsentControl(ctx, at, sel)
	if !at.consent.Accepted() {
		return
	}

	// Give the site's own JS time to persist consent before reading the jar.
	sleepCtx(ctx, e.cfg.ConsentSettleDelay)
	e.confirmConsentCookie(ctx, at)
}

// clickConsentControl dismisses a consent button. The coordinate click is
// preferred because some consent widgets swallow programmatic clicks behind
// overlay stacking; the element click is the fallback for hidden or
// zero-size targets.
func (e *Engine) clickConsentControl(ctx context.Context, at *attempt, sel string) schemas.ConsentOutcome {
	box, err := at.page.BoundingBox(ctx, sel)
	if err == nil {
		x, y := box.Center()
		if cerr := at.page.ClickAt(ctx, x, y); cerr == nil {
			at.logger.Debug("Consent control dismissed by coordinate click.",
				zap.String("selector", sel), zap.Float64("x", x), zap.Float64("y", y))
			return schemas.ConsentAcceptedByCoordinateClick
		}
	} else {
		at.logger.Debug("Consent control has no usable bounding box, falling back to element click.",
			zap.String("selector", sel), zap.Error(err))
	}

	if cerr := at.page.Click(ctx, sel); cerr != nil {
		at.diag(schemas.ErrKindConsentControlNotFound, "clicking consent control %q failed: %v", sel, cerr)
		return schemas.ConsentAcceptFailed
	}
	at.logger.Debug("Consent control dismissed by element click.", zap.String("selector", sel))
	return schemas.ConsentAcceptedByClick
}

// confirmConsentCookie checks that a consent-indicating cookie landed in the
// jar after a click. Absence is a soft diagnostic, consent may be persisted
// asynchronously or through another mechanism later.
func (e *Engine) confirmConsentCookie(ctx context.Context, at *attempt) {
	jar, err := at.page.Cookies(ctx)
	if err != nil {
		at.diag(schemas.ErrKindConsentCookieNotConfirmed, "reading cookies after consent click: %v", err)
		return
	}
	if !jar.HasNameContaining("consent") {
		at.diag(schemas.ErrKindConsentCookieNotConfirmed,
			"no consent cookie present after accepting the gate")
	}
}

// acceptStandardConsent handles the second, independent consent control that
// can surface just before login submission. Absence is the normal case.
func (e *Engine) acceptStandardConsent(ctx context.Context, at *attempt) {
	sel := at.provider.ConsentStandardSelector
	if sel == "" {
		return
	}
	if err := at.page.WaitVisible(ctx, sel, secondaryConsentWait); err != nil {
		return
	}

	outcome := e.clickConsentControl(ctx, at, sel)
	if !outcome.Accepted() {
		return
	}
	if !at.consent.Accepted() {
		at.consent = outcome
	}
	sleepCtx(ctx, e.cfg.ConsentSettleDelay)
	e.confirmConsentCookie(ctx, at)
}
