// File: cmd/factory.go
package cmd

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/fetcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/patcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// Components holds the services the standalone fetch and patch commands share.
type Components struct {
	Logger   *zap.Logger
	Platform *platform.Host
	OS       platform.OS
	Dir      string
	Fetcher  *fetcher.Fetcher
	Patcher  *patcher.Patcher
}

// Source is the unpatched executable.
func (c *Components) Source(cfg config.DriverConfig) string {
	name := cfg.SourceName
	if name == "" {
		name = platform.SourceName(c.OS)
	}
	return filepath.Join(c.Dir, name)
}

// Target is where the patched executable is written.
func (c *Components) Target(cfg config.DriverConfig) string {
	name := cfg.PatchedName
	if name == "" {
		name = platform.PatchedName(c.OS)
	}
	return filepath.Join(c.Dir, name)
}

// newComponents wires the host platform, fetcher and patcher from cfg.
func newComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	dir, err := filepath.Abs(cfg.Driver.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve driver directory: %w", err)
	}

	host := platform.NewHost(dir, logger)
	hostOS, err := host.CurrentOS()
	if err != nil {
		return nil, err
	}

	clientCfg := fetcher.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.Fetch.Timeout
	clientCfg.Logger = logger

	return &Components{
		Logger:   logger,
		Platform: host,
		OS:       hostOS,
		Dir:      dir,
		Fetcher:  fetcher.New(fetcher.NewClient(clientCfg), cfg.Fetch.BaseURL, logger),
		Patcher:  patcher.New(host, logger, patcher.WithChecksumVerification(cfg.Driver.VerifyChecksum)),
	}, nil
}
