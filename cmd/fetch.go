package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/observability"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the latest chromedriver for this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			c, err := newComponents(cfg, observability.GetLogger())
			if err != nil {
				return err
			}

			version, err := c.Fetcher.Fetch(cmd.Context(), c.OS, c.Dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chromedriver %s installed in %s\n", version, c.Dir)
			return nil
		},
	}
}
