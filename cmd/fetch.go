// -- cmd/fetch.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/internal/browser"
	"github.com/xkilldash9x/sessionforge/internal/credstore"
	"github.com/xkilldash9x/sessionforge/internal/engine"
	"github.com/xkilldash9x/sessionforge/internal/observability"
	"github.com/xkilldash9x/sessionforge/internal/provider"
)

// newFetchCmd creates the `fetch` command: log in as a user, then retrieve
// one authenticated page and print its markup.
func newFetchCmd() *cobra.Command {
	var (
		providerID string
		userID     string
		outFile    string
	)

	fetchCmd := &cobra.Command{
		Use:   "fetch <target-url>",
		Short: "Logs in and retrieves one authenticated page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			targetURL := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
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
			result := eng.FetchAuthenticatedPage(ctx, creds, providerCfg, targetURL)
			if !result.Success {
				return fmt.Errorf("fetch failed: %s", result.Error)
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(result.HTML), 0o600); err != nil {
					return fmt.Errorf("writing page content: %w", err)
				}
				logger.Info("Page content written",
					zap.String("path", outFile), zap.Int("bytes", len(result.HTML)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.HTML)
			return nil
		},
	}

	fetchCmd.Flags().StringVar(&providerID, "provider", "freemail", "provider identifier to log in with")
	fetchCmd.Flags().StringVar(&userID, "user-id", "", "user id to look up in the credential store")
	fetchCmd.Flags().StringVarP(&outFile, "output", "o", "", "write the page content to a file instead of stdout")
	fetchCmd.MarkFlagRequired("user-id")

	return fetchCmd
}
