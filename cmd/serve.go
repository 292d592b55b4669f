// -- cmd/serve.go --
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sessionforge/internal/browser"
	"github.com/xkilldash9x/sessionforge/internal/credstore"
	"github.com/xkilldash9x/sessionforge/internal/engine"
	"github.com/xkilldash9x/sessionforge/internal/observability"
	"github.com/xkilldash9x/sessionforge/internal/provider"
	"github.com/xkilldash9x/sessionforge/internal/server"
)

// newServeCmd creates the `serve` command: the long-running HTTP front door
// over the acquisition engine.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the session acquisition HTTP service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			registry := provider.NewRegistry(cfg.Providers)
			credClient := credstore.NewClient(cfg.CredStore, logger)

			manager := browser.NewManager(cfg.Browser, logger)
			eng := engine.NewEngine(manager, cfg.Engine, logger)
			srv := server.NewServer(cfg.Server, registry, credClient, eng, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.ListenAndServe)
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down.")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("HTTP shutdown incomplete", zap.Error(err))
				}
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown incomplete", zap.Error(err))
				}
				return nil
			})
			return g.Wait()
		},
	}

	serveCmd.Flags().String("listen", "", "listen address override (defaults to server.listen)")
	return serveCmd
}
