// Package platform isolates the host operating system behind a small capability
// interface: which OS we are on, how to start a child process and how to make a
// file executable. The patcher and launcher never touch os/exec or os.Chmod directly.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// OS identifies one of the supported host operating systems.
type OS string

const (
	Linux   OS = "linux"
	MacOS   OS = "darwin"
	Windows OS = "windows"
)

// ErrUnsupportedPlatform is matched by UnsupportedPlatformError via errors.Is.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// UnsupportedPlatformError is returned for any GOOS outside the supported set.
type UnsupportedPlatformError struct {
	GOOS string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %q", e.GOOS)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// Detect maps a GOOS value onto a supported OS.
func Detect(goos string) (OS, error) {
	switch OS(goos) {
	case Linux, MacOS, Windows:
		return OS(goos), nil
	default:
		return "", &UnsupportedPlatformError{GOOS: goos}
	}
}

// IsPOSIX reports whether the OS uses POSIX permission bits.
func (o OS) IsPOSIX() bool {
	return o == Linux || o == MacOS
}

// ExeSuffix is the executable file extension, including the dot.
func (o OS) ExeSuffix() string {
	if o == Windows {
		return ".exe"
	}
	return ""
}

// ArchiveSuffix names the platform flavour used by the chromedriver
// distribution archives (chromedriver_<suffix>.zip).
func (o OS) ArchiveSuffix() string {
	switch o {
	case Windows:
		return "win32"
	case MacOS:
		return "mac64"
	default:
		return "linux64"
	}
}

// SourceName is the file name of the unpatched driver.
func SourceName(o OS) string {
	return "chromedriver" + o.ExeSuffix()
}

// PatchedName is the file name of the patched driver.
func PatchedName(o OS) string {
	return "chromedriver_PATCHED" + o.ExeSuffix()
}

// Platform is the set of host side effects the core depends on.
type Platform interface {
	CurrentOS() (OS, error)
	SpawnProcess(ctx context.Context, name string, args ...string) (Process, error)
	SetExecutable(path string) error
}

// Host is the Platform backed by the real operating system.
type Host struct {
	dir    string
	goos   string
	logger *zap.Logger
}

// Ensure Host implements the interface.
var _ Platform = (*Host)(nil)

// NewHost creates a Host whose child processes run in dir.
func NewHost(dir string, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		dir:    dir,
		goos:   runtime.GOOS,
		logger: logger.Named("platform"),
	}
}

// CurrentOS reports the host OS, or an UnsupportedPlatformError.
func (h *Host) CurrentOS() (OS, error) {
	return Detect(h.goos)
}

// SpawnProcess starts name without waiting for it to become ready. The child is
// not bound to ctx: it lives until Kill is called on the returned Process.
func (h *Host) SpawnProcess(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = h.dir
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	h.logger.Debug("Spawned child process",
		zap.String("name", name),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid),
	)
	return newExecProcess(cmd), nil
}

// SetExecutable sets mode 0755 on POSIX hosts and does nothing elsewhere.
func (h *Host) SetExecutable(path string) error {
	o, err := h.CurrentOS()
	if err != nil {
		return err
	}
	if !o.IsPOSIX() {
		return nil
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("failed to set executable permissions on %s: %w", path, err)
	}
	return nil
}
