// -- cmd/acquire.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/browser"
	"github.com/xkilldash9x/sessionforge/internal/credstore"
	"github.com/xkilldash9x/sessionforge/internal/engine"
	"github.com/xkilldash9x/sessionforge/internal/observability"
	"github.com/xkilldash9x/sessionforge/internal/provider"
)

// newAcquireCmd creates the standalone `acquire` command: one acquisition
// attempt, result on stdout, cookie jar persisted as a JSON artifact.
func newAcquireCmd() *cobra.Command {
	var (
		providerID  string
		userID      string
		cookiesOut  string
		interactive bool
	)

	acquireCmd := &cobra.Command{
		Use:   "acquire",
		Short: "Runs one session acquisition attempt and writes the cookie jar to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if interactive {
				// Debug mode: keep the browser on screen for manual inspection.
				cfg.Browser.Headless = false
			}

			registry := provider.NewRegistry(cfg.Providers)
			providerCfg, err := registry.Lookup(providerID)
			if err != nil {
				return err
			}

			creds, err := credstore.NewClient(cfg.CredStore, logger).Fetch(ctx, userID)
			if err != nil {
				return fmt.Errorf("fetching credentials for %s: %w", userID, err)
			}

			manager := browser.NewManager(cfg.Browser, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown incomplete", zap.Error(err))
				}
			}()

			eng := engine.NewEngine(manager, cfg.Engine, logger)

			var result schemas.AcquisitionResult
			var inspectPage schemas.PageDriver
			if interactive {
				// Debug mode: the authenticated page stays open for manual
				// inspection and is released here after the prompt.
				result, inspectPage = eng.AcquireSessionForInspection(ctx, creds, providerCfg)
			} else {
				result = eng.AcquireSession(ctx, creds, providerCfg)
			}

			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("serializing result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))

			if result.Success {
				artifact := cookiesOut
				if artifact == "" {
					artifact = cfg.Engine.CookieArtifactPath
				}
				if artifact != "" {
					if err := engine.WriteCookieArtifact(artifact, result.Cookies); err != nil {
						return err
					}
					logger.Info("Cookie artifact written",
						zap.String("path", artifact), zap.Int("cookies", len(result.Cookies)))
				}
			}

			if interactive {
				fmt.Fprintln(cmd.OutOrStdout(), "Interactive mode: press Enter to close the browser.")
				bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if inspectPage != nil {
					if err := inspectPage.Close(ctx); err != nil {
						logger.Warn("Closing inspected page failed", zap.Error(err))
					}
				}
			}

			if result.Error != nil {
				return fmt.Errorf("acquisition failed: %s", result.Error.Error())
			}
			return nil
		},
	}

	acquireCmd.Flags().StringVar(&providerID, "provider", "freemail", "provider identifier to acquire a session for")
	acquireCmd.Flags().StringVar(&userID, "user-id", "", "user id to look up in the credential store")
	acquireCmd.Flags().StringVar(&cookiesOut, "cookies-out", "", "path for the cookie artifact (defaults to engine.cookie_artifact_path)")
	acquireCmd.Flags().BoolVar(&interactive, "interactive", false, "run headful and wait for Enter before closing the browser")
	acquireCmd.MarkFlagRequired("user-id")

	return acquireCmd
}
