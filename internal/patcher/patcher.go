// Package patcher removes the cdc_ automation signature from a chromedriver
// executable. The image is scanned once, every marker region is overwritten
// with random letters in memory, and the result is written to a new file that
// doubles as a cache for later runs.
package patcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// stagingSuffix names the file an image is written to before it replaces the target.
const stagingSuffix = ".tmp"

// Result describes one call to Patch.
type Result struct {
	Source string
	Target string
	// Cached is true when an existing patched executable was reused and
	// nothing was written.
	Cached bool
	// Offsets of every marker found in the source image.
	Offsets []int
	// Patched is the number of regions overwritten.
	Patched int
	// Size of the written image in bytes. Always equal to the source size.
	Size     int
	Checksum string
}

// Patcher produces patched executables.
type Patcher struct {
	platform       platform.Platform
	logger         *zap.Logger
	random         RandomSource
	verifyChecksum bool
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithRandomSource replaces the source of replacement letters.
func WithRandomSource(src RandomSource) Option {
	return func(p *Patcher) {
		p.random = src
	}
}

// WithChecksumVerification makes a cache hit depend on the checksum sidecar
// matching the cached file. A missing sidecar is still accepted.
func WithChecksumVerification(enabled bool) Option {
	return func(p *Patcher) {
		p.verifyChecksum = enabled
	}
}

// New creates a Patcher.
func New(plat platform.Platform, logger *zap.Logger, opts ...Option) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Patcher{
		platform:       plat,
		logger:         logger.Named("patcher"),
		random:         DefaultRandomSource,
		verifyChecksum: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Patch writes a copy of src with every marker region randomized to dst. If
// dst already exists it is reused and nothing is written.
func (p *Patcher) Patch(ctx context.Context, src, dst string) (*Result, error) {
	hostOS, err := p.platform.CurrentOS()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock, err := lockPath(ctx, dst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := p.logger.With(zap.String("source", src), zap.String("target", dst))

	cached, err := p.cacheHit(logger, dst)
	if err != nil {
		return nil, err
	}
	if cached {
		logger.Info("Detected patched chromedriver executable, skipping patch.")
		return &Result{Source: src, Target: dst, Cached: true}, nil
	}

	logger.Info("Starting chromedriver executable patch.")
	image, err := os.ReadFile(src)
	if err != nil {
		return nil, &IOError{Op: "read", Path: src, Err: err}
	}

	offsets := Scan(image)
	if len(offsets) == 0 {
		logger.Info("No cdc markers found.")
	} else {
		logger.Info("Found cdc markers.", zap.Int("count", len(offsets)))
	}

	patched := 0
	for _, off := range offsets {
		if err := Randomize(image, off, p.random); err != nil {
			logger.Error("Marker region overruns the executable image", zap.Int("offset", off), zap.Error(err))
			return nil, err
		}
		patched++
	}
	logger.Info("Patched cdc markers.", zap.Int("patched", patched))

	sum, err := p.install(hostOS, dst, image)
	if err != nil {
		logger.Error("Error when writing patch to file", zap.Error(err))
		return nil, err
	}

	logger.Info("Successfully wrote patched executable.", zap.Int("size", len(image)))
	return &Result{
		Source:   src,
		Target:   dst,
		Offsets:  offsets,
		Patched:  patched,
		Size:     len(image),
		Checksum: sum,
	}, nil
}

func (p *Patcher) cacheHit(logger *zap.Logger, dst string) (bool, error) {
	if _, err := os.Stat(dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &IOError{Op: "stat", Path: dst, Err: err}
	}
	if !p.verifyChecksum {
		return true, nil
	}

	recorded, err := readSidecar(dst)
	if err != nil {
		return false, &IOError{Op: "read", Path: dst + checksumSuffix, Err: err}
	}
	if recorded == "" {
		logger.Debug("No checksum recorded for patched executable, trusting it.")
		return true, nil
	}

	actual, err := checksumFile(dst)
	if err != nil {
		return false, &IOError{Op: "read", Path: dst, Err: err}
	}
	if actual != recorded {
		logger.Warn("Patched executable does not match its recorded checksum, patching again.",
			zap.String("recorded", recorded),
			zap.String("actual", actual),
		)
		return false, nil
	}
	return true, nil
}

// install stages the image next to dst, makes it executable and renames it
// into place, then records its checksum. On failure neither a partial image
// nor an image without its permissions is left at dst, so a later run never
// takes it for a cache hit.
func (p *Patcher) install(hostOS platform.OS, dst string, image []byte) (string, error) {
	staged := dst + stagingSuffix
	if err := writeImage(staged, image); err != nil {
		_ = os.Remove(staged)
		return "", err
	}

	if hostOS.IsPOSIX() {
		if err := p.platform.SetExecutable(staged); err != nil {
			_ = os.Remove(staged)
			return "", &IOError{Op: "chmod", Path: dst, Err: err}
		}
	}

	// A sidecar left by an earlier image must not vouch for this one.
	if err := os.Remove(dst + checksumSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(staged)
		return "", &IOError{Op: "write", Path: dst + checksumSuffix, Err: err}
	}
	if err := os.Rename(staged, dst); err != nil {
		_ = os.Remove(staged)
		return "", &IOError{Op: "rename", Path: dst, Err: err}
	}

	sum := checksumOf(image)
	if err := writeSidecar(dst, sum); err != nil {
		_ = os.Remove(dst)
		return "", &IOError{Op: "write", Path: dst + checksumSuffix, Err: err}
	}
	return sum, nil
}

// writeImage always truncates; a stale file is never appended to.
func writeImage(path string, image []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if _, err := f.Write(image); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write", Path: path, Err: fmt.Errorf("close: %w", err)}
	}
	return nil
}
