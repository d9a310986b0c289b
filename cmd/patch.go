package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/observability"
)

func newPatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "Write a patched copy of chromedriver",
		Long: `Scans the chromedriver executable for every cdc_ marker and writes a copy with each
marker region replaced by random letters. An existing patched copy is reused unless its
checksum sidecar no longer matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			c, err := newComponents(cfg, logger)
			if err != nil {
				return err
			}

			result, err := c.Patcher.Patch(ctx, c.Source(cfg.Driver), c.Target(cfg.Driver))
			if err != nil {
				logger.Error("Failed to patch chromedriver", zap.Error(err))
				return err
			}

			state := "patched"
			if result.Cached {
				state = "cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d markers, sha256 %s)\n",
				state, result.Target, len(result.Offsets), result.Checksum)
			return nil
		},
	}
}
