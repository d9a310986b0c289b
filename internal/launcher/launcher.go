// Package launcher starts a patched chromedriver on a random local port and
// retries the WebDriver session handshake until it succeeds or the attempt
// budget is exhausted.
package launcher

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tebeka/selenium"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// Defaults match the timings chromedriver needs on a cold start.
const (
	DefaultMaxAttempts = 20
	DefaultBackoff     = 250 * time.Millisecond
	DefaultPortMin     = 2000
	DefaultPortMax     = 5000
)

// stopTimeout bounds how long a failed launch waits for its child to be reaped.
const stopTimeout = 5 * time.Second

// Driver is the part of a WebDriver session this module relies on.
// selenium.WebDriver satisfies it.
type Driver interface {
	SessionID() string
	Get(url string) error
	PageSource() (string, error)
	Capabilities() (selenium.Capabilities, error)
	Quit() error
}

// SessionStarter performs one session-establishment request.
type SessionStarter interface {
	Start(ctx context.Context, urlPrefix string, caps selenium.Capabilities) (Driver, error)
}

// PortSource picks ports. *rand.Rand satisfies it.
type PortSource interface {
	Intn(n int) int
}

type globalPorts struct{}

func (globalPorts) Intn(n int) int { return rand.Intn(n) }

// Config controls a Launcher.
type Config struct {
	// Executable is the command used to start the driver, relative to the
	// platform's working directory (for example "./chromedriver_PATCHED").
	Executable  string
	MaxAttempts int
	Backoff     time.Duration
	// Ports are drawn from [PortMin, PortMax).
	PortMin int
	PortMax int
	// Timeout caps the whole launch. Zero means only the attempt budget applies.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.PortMin <= 0 && c.PortMax <= 0 {
		c.PortMin, c.PortMax = DefaultPortMin, DefaultPortMax
	}
}

// Launcher spawns drivers and connects to them.
type Launcher struct {
	platform platform.Platform
	starter  SessionStarter
	logger   *zap.Logger
	cfg      Config
	ports    PortSource
}

// New creates a Launcher. The zero values in cfg are replaced by defaults.
func New(plat platform.Platform, starter SessionStarter, logger *zap.Logger, cfg Config) (*Launcher, error) {
	cfg.applyDefaults()
	if cfg.Executable == "" {
		return nil, fmt.Errorf("launcher: executable is required")
	}
	if cfg.PortMin <= 0 || cfg.PortMax <= cfg.PortMin || cfg.PortMax > 65536 {
		return nil, fmt.Errorf("launcher: invalid port range [%d, %d)", cfg.PortMin, cfg.PortMax)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		platform: plat,
		starter:  starter,
		logger:   logger.Named("launcher"),
		cfg:      cfg,
		ports:    globalPorts{},
	}, nil
}

// SetPortSource replaces the random port source.
func (l *Launcher) SetPortSource(src PortSource) {
	l.ports = src
}

// Launch spawns the driver and returns once a session is established. The
// process is never respawned; only the handshake is retried. On any failure
// the spawned process is stopped before returning.
func (l *Launcher) Launch(ctx context.Context, caps selenium.Capabilities) (*DriverSession, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	port := l.cfg.PortMin + l.ports.Intn(l.cfg.PortMax-l.cfg.PortMin)
	logger := l.logger.With(zap.Int("port", port))
	logger.Info("Starting chromedriver.", zap.String("executable", l.cfg.Executable))

	proc, err := l.platform.SpawnProcess(ctx, l.cfg.Executable, fmt.Sprintf("--port=%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start chromedriver: %w", err)
	}

	urlPrefix := fmt.Sprintf("http://localhost:%d", port)
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if !proc.Alive() {
			return nil, l.exited(logger, proc)
		}

		driver, err := l.starter.Start(ctx, urlPrefix, caps)
		if err == nil {
			logger.Info("Chromedriver session established.",
				zap.Int("attempt", attempt),
				zap.String("session_id", driver.SessionID()),
			)
			return newDriverSession(port, urlPrefix, proc, driver, attempt, l.logger), nil
		}
		lastErr = err
		logger.Debug("Session attempt failed.", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == l.cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(l.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.stop(logger, proc)
			return nil, fmt.Errorf("launch cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-proc.Done():
			timer.Stop()
			return nil, l.exited(logger, proc)
		case <-timer.C:
		}
	}

	l.stop(logger, proc)
	err = &LaunchTimeoutError{Attempts: l.cfg.MaxAttempts, Port: port, LastErr: lastErr}
	logger.Error("Failed to connect to chromedriver.", zap.Error(err))
	return nil, err
}

func (l *Launcher) exited(logger *zap.Logger, proc platform.Process) error {
	l.stop(logger, proc)
	err := &ProcessExitedError{PID: proc.PID(), Err: proc.Err()}
	logger.Error("Chromedriver exited before accepting a session.", zap.Error(err))
	return err
}

func (l *Launcher) stop(logger *zap.Logger, proc platform.Process) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := platform.Stop(ctx, proc); err != nil {
		logger.Warn("Failed to stop chromedriver process.", zap.Int("pid", proc.PID()), zap.Error(err))
	}
}
