// Package undetected prepares a patched chromedriver and starts WebDriver
// sessions against it.
//
//	drv, err := undetected.New(ctx, config.NewDefaultConfig(), logger)
//	if err != nil { ... }
//	session, err := drv.StartDriver(ctx)
//	if err != nil { ... }
//	defer session.Quit(context.Background())
package undetected

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tebeka/selenium"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
	"github.com/xkilldash9x/undetected-chromedriver/internal/fetcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/launcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/patcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
	"github.com/xkilldash9x/undetected-chromedriver/internal/webdriver"
)

// Session is a live chromedriver process with an established WebDriver session.
type Session = launcher.DriverSession

// UndetectedWebDriver holds a patched driver ready to be launched.
type UndetectedWebDriver struct {
	// Capabilities are sent with every new session. Callers may edit them
	// before StartDriver.
	Capabilities selenium.Capabilities
	// Patch describes the executable that will be launched.
	Patch *patcher.Result

	launcher *launcher.Launcher
	logger   *zap.Logger
}

type options struct {
	platform platform.Platform
	starter  launcher.SessionStarter
	fetcher  *fetcher.Fetcher
	patchOps []patcher.Option
}

// Option customizes New.
type Option func(*options)

// WithPlatform replaces the host platform.
func WithPlatform(p platform.Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithSessionStarter replaces the selenium-backed session starter.
func WithSessionStarter(s launcher.SessionStarter) Option {
	return func(o *options) { o.starter = s }
}

// WithFetcher replaces the fetcher built from cfg.Fetch.
func WithFetcher(f *fetcher.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPatcherOptions forwards options to the patcher.
func WithPatcherOptions(opts ...patcher.Option) Option {
	return func(o *options) { o.patchOps = append(o.patchOps, opts...) }
}

// New makes sure a patched chromedriver exists in cfg.Driver.Dir, downloading
// the unpatched one first if it is missing and fetching is enabled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*UndetectedWebDriver, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("undetected")

	dir, err := filepath.Abs(cfg.Driver.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve driver directory: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.platform == nil {
		o.platform = platform.NewHost(dir, logger)
	}
	if o.starter == nil {
		o.starter = webdriver.NewRemoteStarter(logger)
	}

	hostOS, err := o.platform.CurrentOS()
	if err != nil {
		return nil, err
	}
	src, dst := executablePaths(cfg.Driver, dir, hostOS)

	// A patched copy can be reused without its source, so only fetch when both are gone.
	if missing(src) && missing(dst) {
		if !cfg.Fetch.Enabled {
			return nil, fmt.Errorf("chromedriver not found at %s and fetching is disabled", src)
		}
		f := o.fetcher
		if f == nil {
			clientCfg := fetcher.NewDefaultClientConfig()
			clientCfg.RequestTimeout = cfg.Fetch.Timeout
			clientCfg.Logger = logger
			f = fetcher.New(fetcher.NewClient(clientCfg), cfg.Fetch.BaseURL, logger)
		}
		logger.Info("chromedriver missing, fetching the latest release.", zap.String("dir", dir))
		if _, err := f.Fetch(ctx, hostOS, dir); err != nil {
			return nil, err
		}
	}

	patchOpts := append([]patcher.Option{patcher.WithChecksumVerification(cfg.Driver.VerifyChecksum)}, o.patchOps...)
	result, err := patcher.New(o.platform, logger, patchOpts...).Patch(ctx, src, dst)
	if err != nil {
		return nil, err
	}

	l, err := launcher.New(o.platform, o.starter, logger, launcher.Config{
		Executable:  dst,
		MaxAttempts: cfg.Launcher.MaxAttempts,
		Backoff:     cfg.Launcher.Backoff,
		PortMin:     cfg.Launcher.PortMin,
		PortMax:     cfg.Launcher.PortMax,
		Timeout:     cfg.Launcher.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return &UndetectedWebDriver{
		Capabilities: webdriver.DefaultCapabilities(cfg.Browser),
		Patch:        result,
		launcher:     l,
		logger:       logger,
	}, nil
}

// StartDriver launches the patched executable and connects a session to it.
func (u *UndetectedWebDriver) StartDriver(ctx context.Context) (*Session, error) {
	return u.launcher.Launch(ctx, u.Capabilities)
}

// NewDriver is New followed by StartDriver.
func NewDriver(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Session, error) {
	u, err := New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return u.StartDriver(ctx)
}

// Chrome starts a session with the default configuration in the working directory.
func Chrome(ctx context.Context) (*Session, error) {
	return NewDriver(ctx, config.NewDefaultConfig(), nil)
}

func executablePaths(cfg config.DriverConfig, dir string, o platform.OS) (src, dst string) {
	srcName, dstName := cfg.SourceName, cfg.PatchedName
	if srcName == "" {
		srcName = platform.SourceName(o)
	}
	if dstName == "" {
		dstName = platform.PatchedName(o)
	}
	return filepath.Join(dir, srcName), filepath.Join(dir, dstName)
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}
