package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/observability"
	"github.com/xkilldash9x/undetected-chromedriver/pkg/undetected"
)

const shutdownTimeout = 10 * time.Second

func newLaunchCmd() *cobra.Command {
	var (
		headless bool
		url      string
	)

	launchCmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the patched chromedriver and hold a session open until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := *config.Get()
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}

			session, err := undetected.NewDriver(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			if url != "" {
				if err := session.Driver.Get(url); err != nil {
					logger.Warn("Failed to open start page.", zap.String("url", url), zap.Error(err))
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "session %s on %s (pid %d)\n",
				session.Driver.SessionID(), session.URL, session.Process.PID())
			logger.Info("Session ready, waiting for interrupt.", zap.String("session", session.ID))

			<-ctx.Done()

			quitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := session.Quit(quitCtx); err != nil {
				logger.Warn("Failed to shut down cleanly.", zap.Error(err))
				return err
			}
			logger.Info("Session closed.")
			return nil
		},
	}

	launchCmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")
	launchCmd.Flags().StringVar(&url, "url", "", "page to open once the session is up")
	return launchCmd
}
