package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/observability"
	"github.com/xkilldash9x/undetected-chromedriver/internal/probe"
	"github.com/xkilldash9x/undetected-chromedriver/pkg/undetected"
)

// ErrDetected is returned by check when the browser was recognized as automated.
var ErrDetected = errors.New("automation detected")

func newCheckCmd() *cobra.Command {
	var skipCDP bool

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Start a session and report whether it looks automated",
		Long: `Opens the configured headless-detection page and compares its verdict with the
expected text, then inspects the page over the DevTools protocol for leftover cdc_
properties and navigator.webdriver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			session, err := undetected.NewDriver(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				quitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if qerr := session.Quit(quitCtx); qerr != nil {
					logger.Warn("Failed to close check session.", zap.Error(qerr))
				}
			}()

			timeout := cfg.Probe.Timeout
			if timeout <= 0 {
				timeout = probe.DefaultTimeout
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			detected := false

			verdict, err := probe.CheckHeadless(probeCtx, session.Driver, cfg.Probe.DetectionURL, cfg.Probe.ResultXPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "headless check: %s\n", verdict)
			if cfg.Probe.ExpectedText != "" && !strings.Contains(verdict, cfg.Probe.ExpectedText) {
				detected = true
			}

			if !skipCDP {
				caps, err := session.Driver.Capabilities()
				if err != nil {
					return fmt.Errorf("failed to read session capabilities: %w", err)
				}
				addr, err := probe.DebuggerAddress(caps)
				if err != nil {
					return err
				}
				report, err := probe.NewCDP(logger, timeout).Markers(probeCtx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "cdc properties: %d, navigator.webdriver: %t\n", len(report.Properties), report.Webdriver)
				for _, name := range report.Properties {
					fmt.Fprintf(out, "  %s\n", name)
				}
				if !report.Clean() {
					detected = true
				}
			}

			if detected {
				return ErrDetected
			}
			fmt.Fprintln(out, "not detected")
			return nil
		},
	}

	checkCmd.Flags().BoolVar(&skipCDP, "skip-cdp", false, "skip the DevTools marker probe")
	return checkCmd
}
