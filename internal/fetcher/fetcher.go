// Package fetcher downloads the chromedriver release matching the host OS and
// unpacks it so the patcher finds the unpatched executable in place.
package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// Size caps guard against a misbehaving mirror.
const (
	maxVersionBytes = 1 << 10
	maxArchiveBytes = 256 << 20
	maxEntryBytes   = 512 << 20
)

// ErrUnsafeArchive is returned for entries that would be written outside the target directory.
var ErrUnsafeArchive = errors.New("unsafe archive entry")

// Fetcher resolves and downloads chromedriver releases.
type Fetcher struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// New creates a Fetcher. A nil client uses NewClient's defaults.
func New(client *http.Client, baseURL string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		cfg := NewDefaultClientConfig()
		cfg.Logger = logger
		client = NewClient(cfg)
	}
	return &Fetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("fetcher"),
	}
}

// Fetch downloads the latest release for o and extracts it into dir. It
// returns the version that was installed.
func (f *Fetcher) Fetch(ctx context.Context, o platform.OS, dir string) (string, error) {
	version, err := f.LatestRelease(ctx)
	if err != nil {
		return "", err
	}

	archive, err := f.Download(ctx, version, o)
	if err != nil {
		return "", err
	}

	written, err := Extract(archive, dir)
	if err != nil {
		return "", err
	}

	if err := placeExecutable(dir, platform.SourceName(o), written); err != nil {
		return "", err
	}

	f.logger.Info("Fetched chromedriver.",
		zap.String("version", version),
		zap.String("os", string(o)),
		zap.Int("files", len(written)),
	)
	return version, nil
}

// LatestRelease returns the version string published at <base>/LATEST_RELEASE.
func (f *Fetcher) LatestRelease(ctx context.Context) (string, error) {
	body, err := f.get(ctx, f.baseURL+"/LATEST_RELEASE", maxVersionBytes)
	if err != nil {
		return "", fmt.Errorf("failed to resolve latest chromedriver release: %w", err)
	}
	version := strings.TrimSpace(string(body))
	if version == "" {
		return "", fmt.Errorf("failed to resolve latest chromedriver release: empty version")
	}
	return version, nil
}

// ArchiveURL is the download location of version for o.
func (f *Fetcher) ArchiveURL(version string, o platform.OS) string {
	return fmt.Sprintf("%s/%s/chromedriver_%s.zip", f.baseURL, version, o.ArchiveSuffix())
}

// Download returns the raw zip archive of version for o.
func (f *Fetcher) Download(ctx context.Context, version string, o platform.OS) ([]byte, error) {
	u := f.ArchiveURL(version, o)
	f.logger.Debug("Downloading chromedriver archive.", zap.String("url", u))
	body, err := f.get(ctx, u, maxArchiveBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download chromedriver %s: %w", version, err)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, u string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", u, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("GET %s: response exceeds %d bytes", u, limit)
	}
	return body, nil
}

// Extract unpacks a zip archive into dir and returns the files it wrote.
// Entries that would escape dir are rejected.
func Extract(archive []byte, dir string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeArchive, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var written []string
	for _, entry := range r.File {
		name := filepath.FromSlash(strings.TrimSuffix(entry.Name, "/"))
		if name == "" || !filepath.IsLocal(name) {
			return written, fmt.Errorf("%w: %q", ErrUnsafeArchive, entry.Name)
		}
		target := filepath.Join(dir, name)

		if strings.HasSuffix(entry.Name, "/") || entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		if err := extractFile(entry, target); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

func extractFile(entry *zip.File, target string) error {
	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	if n > maxEntryBytes {
		out.Close()
		return fmt.Errorf("failed to extract %s: entry exceeds %d bytes", entry.Name, maxEntryBytes)
	}
	return out.Close()
}

// placeExecutable moves a nested chromedriver (newer archives wrap it in a
// chromedriver-<platform>/ directory) to the top of dir.
func placeExecutable(dir, name string, written []string) error {
	top := filepath.Join(dir, name)
	if _, err := os.Stat(top); err == nil {
		return nil
	}
	for _, p := range written {
		if filepath.Base(p) == name {
			if err := os.Rename(p, top); err != nil {
				return fmt.Errorf("failed to move %s into place: %w", p, err)
			}
			return nil
		}
	}
	return fmt.Errorf("archive did not contain %s", name)
}
