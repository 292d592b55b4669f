// internal/engine/engine.go

// Package engine drives a headless browser through a provider's
// consent-and-login gate and harvests the resulting cookie jar. The flow is
// an explicit state machine with a hard versus soft failure split: only a
// missing login form, bad input, or a broken driver abort an attempt, every
// other anomaly is recorded as a diagnostic next to a still-possible success.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
)

// state names one phase of an acquisition attempt, for logs and tests.
type state string

const (
	stateInit                state = "init"
	stateConsentResolving    state = "consent_resolving"
	stateLoggingIn           state = "logging_in"
	statePostLoginNavigating state = "post_login_navigating"
	stateEchoingConsent      state = "echoing_consent"
	stateExporting           state = "exporting"
)

// Engine runs acquisition attempts. One Engine is shared across requests;
// every attempt gets its own page from the factory and releases it exactly
// once, on every exit path.
type Engine struct {
	factory schemas.DriverFactory
	cfg     config.EngineConfig
	logger  *zap.Logger
	echo    *http.Client
}

// NewEngine wires an Engine over a page factory.
func NewEngine(factory schemas.DriverFactory, cfg config.EngineConfig, logger *zap.Logger) *Engine {
	return &Engine{
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("engine"),
		echo:    &http.Client{Timeout: cfg.EchoTimeout},
	}
}

// attempt carries the mutable per-invocation state through the machine.
type attempt struct {
	id       string
	page     schemas.PageDriver
	creds    schemas.SessionCredentials
	provider config.ProviderConfig
	consent  schemas.ConsentOutcome
	diags    []string
	state    state
	logger   *zap.Logger
}

// diag records a soft failure. Soft failures never change control flow.
func (a *attempt) diag(kind schemas.ErrorKind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.diags = append(a.diags, fmt.Sprintf("%s: %s", kind, msg))
	a.logger.Warn("Soft failure recorded.", zap.String("kind", string(kind)), zap.String("detail", msg))
}

func (a *attempt) transition(next state) {
	a.logger.Debug("State transition.", zap.String("from", string(a.state)), zap.String("to", string(next)))
	a.state = next
}

// mergeCredentials fills URL gaps in store-supplied credentials from the
// provider's static defaults.
func mergeCredentials(creds schemas.SessionCredentials, provider config.ProviderConfig) schemas.SessionCredentials {
	if creds.LoginURL == "" {
		creds.LoginURL = provider.LoginURL
	}
	if creds.OverviewURL == "" {
		creds.OverviewURL = provider.OverviewURL
	}
	if creds.DetailURL == "" {
		creds.DetailURL = provider.DetailURL
	}
	return creds
}

// AcquireSession runs one full acquisition attempt: consent, login, post
// login navigation, consent echo, export. Credential validation happens
// before any browser resource is created, so bad input fails in
// milliseconds. The page is released exactly once no matter where the
// attempt ends, including panic inside the automation layer.
func (e *Engine) AcquireSession(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig) schemas.AcquisitionResult {
	result, _ := e.acquire(ctx, creds, provider, false)
	return result
}

// AcquireSessionForInspection runs the same attempt but, on success, hands
// the still-open authenticated page back to the caller, which then owns its
// release. This is the one path where a page outlives the engine call; the
// debug command uses it to leave the session on screen. On failure the page
// is released here as usual and the returned driver is nil.
func (e *Engine) AcquireSessionForInspection(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig) (schemas.AcquisitionResult, schemas.PageDriver) {
	return e.acquire(ctx, creds, provider, true)
}

func (e *Engine) acquire(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig, keepOpen bool) (result schemas.AcquisitionResult, open schemas.PageDriver) {
	at := &attempt{
		id:       uuid.NewString(),
		creds:    mergeCredentials(creds, provider),
		provider: provider,
		consent:  schemas.ConsentNotPresent,
		state:    stateInit,
	}
	at.logger = e.logger.With(zap.String("attempt_id", at.id), zap.String("provider", provider.Name))
	result.AttemptID = at.id

	if missing := at.creds.Validate(); len(missing) > 0 {
		result.Error = schemas.NewEngineError(schemas.ErrKindIncompleteCredentials,
			"missing credential fields: %s", strings.Join(missing, ", "))
		return result, nil
	}

	page, err := e.factory.NewPage(ctx)
	if err != nil {
		result.Error = schemas.NewEngineError(schemas.ErrKindDriverFailure, "creating page: %v", err)
		return result, nil
	}
	at.page = page

	defer func() {
		if r := recover(); r != nil {
			at.logger.Error("Recovered from automation panic.",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			result = schemas.AcquisitionResult{
				AttemptID: at.id,
				Error:     schemas.NewEngineError(schemas.ErrKindDriverFailure, "automation panic: %v", r),
			}
		}
		if keepOpen && result.Success {
			open = page
		} else if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			at.logger.Warn("Releasing page failed.", zap.Error(cerr))
		}
		result.Diagnostics = at.diags
	}()

	jar, eerr := e.run(ctx, at)
	if eerr != nil {
		at.logger.Error("Acquisition failed.", zap.String("state", string(at.state)), zap.Error(eerr))
		result.Error = eerr
		return result, nil
	}

	at.logger.Info("Acquisition succeeded.",
		zap.Int("cookies", len(jar)), zap.String("consent_outcome", string(at.consent)))
	result.Success = true
	result.Cookies = jar
	return result, nil
}

// run walks the state machine over an open page. It returns the exported
// jar, or the hard failure that aborted the attempt.
func (e *Engine) run(ctx context.Context, at *attempt) (schemas.CookieJar, *schemas.EngineError) {
	if eerr := e.loginFlow(ctx, at); eerr != nil {
		return nil, eerr
	}

	at.transition(statePostLoginNavigating)
	e.navigateSequence(ctx, at,
		schemas.NavigationStep{URL: at.creds.OverviewURL, SettleTimeout: e.cfg.NavigationSettleDelay},
		schemas.NavigationStep{URL: at.creds.DetailURL, SettleTimeout: e.cfg.NavigationSettleDelay},
	)

	at.transition(stateEchoingConsent)
	e.echoConsent(ctx, at)

	at.transition(stateExporting)
	return e.exportSession(ctx, at)
}

// loginFlow is the shared front half of AcquireSession and
// FetchAuthenticatedPage: open the login page, clear the consent gate, fill
// and submit the form.
func (e *Engine) loginFlow(ctx context.Context, at *attempt) *schemas.EngineError {
	at.transition(stateConsentResolving)
	if err := at.page.Navigate(ctx, at.creds.LoginURL); err != nil {
		return schemas.NewEngineError(schemas.ErrKindDriverFailure, "navigating to login page: %v", err)
	}
	e.resolveConsent(ctx, at)

	at.transition(stateLoggingIn)
	return e.injectCredentials(ctx, at)
}

// sleepCtx pauses for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
