// internal/engine/login.go
package engine

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// promoCookieName suppresses a known post-login promotional interstitial.
// It is not derived from any response data and is injected unconditionally
// after every successful login.
const promoCookieName = "no_postlogin_FL_-_Post_Login_315468"

// injectCredentials fills and submits the login form. A username field that
// never appears means the page layout is unrecognized or the navigation
// went somewhere else entirely, which is one of the two hard timeouts in
// the whole flow.
func (e *Engine) injectCredentials(ctx context.Context, at *attempt) *schemas.EngineError {
	if err := at.page.WaitVisible(ctx, at.provider.UsernameSelector, e.cfg.LoginFieldWaitTimeout); err != nil {
		return schemas.NewEngineError(schemas.ErrKindLoginFormNotFound,
			"username field %q did not appear within %s: %v",
			at.provider.UsernameSelector, e.cfg.LoginFieldWaitTimeout, err)
	}

	if err := at.page.SetValue(ctx, at.provider.UsernameSelector, at.creds.Username); err != nil {
		return schemas.NewEngineError(schemas.ErrKindDriverFailure, "setting username: %v", err)
	}
	if err := at.page.SetValue(ctx, at.provider.PasswordSelector, at.creds.Password); err != nil {
		return schemas.NewEngineError(schemas.ErrKindDriverFailure, "setting password: %v", err)
	}

	// The site may re-prompt with the standard consent button right here.
	e.acceptStandardConsent(ctx, at)

	// A lingering overlay node would intercept the submit click.
	if at.provider.ConsentDialogSelector != "" {
		if err := at.page.RemoveNode(ctx, at.provider.ConsentDialogSelector); err != nil {
			at.logger.Debug("Removing consent overlay before submit failed.", zap.Error(err))
		}
	}

	if err := at.page.Click(ctx, at.provider.SubmitSelector); err != nil {
		return schemas.NewEngineError(schemas.ErrKindDriverFailure, "clicking submit control: %v", err)
	}

	sleepCtx(ctx, e.cfg.SubmitSettleDelay)
	idleCtx, cancel := context.WithTimeout(ctx, settleBudget)
	if err := at.page.WaitNetworkIdle(idleCtx, e.cfg.NetworkIdleQuiet); err != nil {
		at.logger.Warn("Network did not go idle after login submit.", zap.Error(err))
	}
	cancel()

	e.injectPromoCookie(ctx, at)
	return nil
}

// injectPromoCookie writes the fixed promotional opt-out cookie onto the
// login URL's domain, before any further navigation.
func (e *Engine) injectPromoCookie(ctx context.Context, at *attempt) {
	u, err := url.Parse(at.creds.LoginURL)
	if err != nil || u.Hostname() == "" {
		at.logger.Warn("Cannot derive a domain for the promo cookie.",
			zap.String("login_url", at.creds.LoginURL), zap.Error(err))
		return
	}

	cookie := schemas.CookieRecord{
		Name:     promoCookieName,
		Value:    "true",
		Domain:   u.Hostname(),
		Path:     "/",
		HTTPOnly: false,
		Secure:   false,
		SameSite: "Lax",
	}
	if err := at.page.SetCookie(ctx, cookie); err != nil {
		at.logger.Warn("Injecting promo opt-out cookie failed.", zap.Error(err))
		return
	}
	at.logger.Debug("Promo opt-out cookie injected.", zap.String("domain", cookie.Domain))
}
