// internal/engine/fetch.go
package engine

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
)

// FetchAuthenticatedPage runs the front half of an acquisition, consent and
// login plus the overview hop, then performs one extra navigation to a
// caller-supplied URL and returns its rendered markup. It shares the
// consent and login decision rules with AcquireSession; only the sequencing
// after login differs. No detail hop, no consent echo.
func (e *Engine) FetchAuthenticatedPage(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig, targetURL string) (result schemas.FetchResult) {
	at := &attempt{
		id:       uuid.NewString(),
		creds:    mergeCredentials(creds, provider),
		provider: provider,
		consent:  schemas.ConsentNotPresent,
		state:    stateInit,
	}
	at.logger = e.logger.With(
		zap.String("attempt_id", at.id),
		zap.String("provider", provider.Name),
		zap.String("target_url", targetURL))

	if targetURL == "" {
		result.Error = "target URL is required"
		return result
	}
	if missing := at.creds.Validate(); len(missing) > 0 {
		result.Error = "missing credential fields: " + strings.Join(missing, ", ")
		return result
	}

	page, err := e.factory.NewPage(ctx)
	if err != nil {
		result.Error = "creating page: " + err.Error()
		return result
	}
	at.page = page

	defer func() {
		if r := recover(); r != nil {
			at.logger.Error("Recovered from automation panic.",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			result = schemas.FetchResult{Error: "automation panic during fetch"}
		}
		if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			at.logger.Warn("Releasing page failed.", zap.Error(cerr))
		}
	}()

	if eerr := e.loginFlow(ctx, at); eerr != nil {
		at.logger.Error("Fetch aborted during login flow.", zap.Error(eerr))
		result.Error = eerr.Error()
		return result
	}

	at.transition(statePostLoginNavigating)
	e.navigateSequence(ctx, at,
		schemas.NavigationStep{URL: at.creds.OverviewURL, SettleTimeout: e.cfg.NavigationSettleDelay},
		schemas.NavigationStep{URL: targetURL, SettleTimeout: e.cfg.NavigationSettleDelay},
	)

	html, err := at.page.HTML(ctx)
	if err != nil {
		result.Error = "reading page content: " + err.Error()
		return result
	}

	at.logger.Info("Authenticated fetch succeeded.", zap.Int("content_bytes", len(html)))
	result.Success = true
	result.HTML = html
	return result
}
