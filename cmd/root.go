// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/observability"
)

// Version is overridden at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const envPrefix = "UCD"

// newRootCmd builds the command tree around its own viper instance.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		noFetch bool
	)
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "ucd",
		Short:         "Patches chromedriver so sites cannot spot it and starts sessions against it.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. Initialize configuration loading (Viper)
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Unmarshal the configuration
			var cfg config.Config
			if err := v.Unmarshal(&cfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "ucd"})
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}

			if noFetch {
				cfg.Fetch.Enabled = false
			}

			// 3. Validate the configuration
			if err := cfg.Validate(); err != nil {
				observability.InitializeLogger(cfg.Logger)
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// 4. Store the configuration globally and start logging
			config.Set(&cfg)
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
				zap.String("driver_dir", cfg.Driver.Dir),
			)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("dir", ".", "directory holding chromedriver and its patched copy")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&noFetch, "no-fetch", false, "never download chromedriver")
	_ = v.BindPFlag("driver.dir", flags.Lookup("dir"))
	_ = v.BindPFlag("logger.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newFetchCmd(),
		newPatchCmd(),
		newLaunchCmd(),
		newCheckCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI. ctx is cancelled on SIGINT/SIGTERM by main.
func Execute(ctx context.Context) error {
	return execute(ctx, newRootCmd(), os.Args[1:])
}

func execute(ctx context.Context, rootCmd *cobra.Command, args []string) error {
	rootCmd.SetArgs(args)
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cancellation during shutdown is not a failure worth reporting.
		if ctx.Err() == nil {
			fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		}
		return err
	}
	return nil
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// UCD_LAUNCHER_MAX_ATTEMPTS overrides launcher.max_attempts, and so on.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a broken one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
