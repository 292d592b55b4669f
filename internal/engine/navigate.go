// internal/engine/navigate.go
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// settleBudget bounds the network-idle wait after each post-login hop so a
// chatty page cannot stall the attempt indefinitely.
const settleBudget = 30 * time.Second

// navigateSequence visits the post-login hops in order. A step with no URL
// is skipped. Navigation failures and unexpected landing URLs are soft:
// the engine's job is best-effort content acquisition, not flow assertion.
func (e *Engine) navigateSequence(ctx context.Context, at *attempt, steps ...schemas.NavigationStep) {
	for _, step := range steps {
		if step.URL == "" {
			continue
		}
		e.navigateStep(ctx, at, step)
	}
}

func (e *Engine) navigateStep(ctx context.Context, at *attempt, step schemas.NavigationStep) {
	at.logger.Debug("Navigating post-login hop.", zap.String("url", step.URL))
	if err := at.page.Navigate(ctx, step.URL); err != nil {
		// A transport failure is not a wrong landing target; record it as a
		// plain diagnostic so operators can tell the two apart.
		msg := fmt.Sprintf("navigating to %s failed: %v", step.URL, err)
		at.diags = append(at.diags, msg)
		at.logger.Warn("Post-login navigation failed.", zap.String("url", step.URL), zap.Error(err))
		return
	}

	idleCtx, cancel := context.WithTimeout(ctx, settleBudget)
	if err := at.page.WaitNetworkIdle(idleCtx, e.cfg.NetworkIdleQuiet); err != nil {
		at.logger.Warn("Network did not go idle after navigation.",
			zap.String("url", step.URL), zap.Error(err))
	}
	cancel()
	sleepCtx(ctx, step.SettleTimeout)

	landed, err := at.page.Location(ctx)
	if err != nil {
		at.logger.Warn("Reading landed URL failed.", zap.Error(err))
		return
	}
	if host := hostOf(step.URL); host != "" && hostOf(landed) != host {
		at.diag(schemas.ErrKindUnexpectedNavigationTarget,
			"requested %s but landed on %s", step.URL, landed)
		return
	}
	at.logger.Debug("Post-login hop settled.", zap.String("landed", landed))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
