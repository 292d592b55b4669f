// internal/engine/export.go
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
)

// exportSession reads the browser context's full cookie jar. The jar is
// pass-through, no filtering or deduplication beyond what the driver
// provides. Jar-validity violations are diagnostics, not failures.
func (e *Engine) exportSession(ctx context.Context, at *attempt) (schemas.CookieJar, *schemas.EngineError) {
	jar, err := at.page.Cookies(ctx)
	if err != nil {
		return nil, schemas.NewEngineError(schemas.ErrKindDriverFailure, "reading cookie jar: %v", err)
	}
	for _, issue := range jar.Validate(at.provider.SessionCookieMarker, at.consent.Accepted()) {
		if strings.Contains(issue, "consent") {
			at.diag(schemas.ErrKindConsentCookieNotConfirmed, "%s", issue)
			continue
		}
		at.diags = append(at.diags, issue)
		at.logger.Warn("Jar validity check failed.", zap.String("detail", issue))
	}
	return jar, nil
}

// WriteCookieArtifact persists a jar as a JSON array for external reuse.
// Only the standalone command path calls this; service responses carry the
// jar inline.
func WriteCookieArtifact(path string, jar schemas.CookieJar) error {
	data, err := json.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing cookie jar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing cookie artifact: %w", err)
	}
	return nil
}
