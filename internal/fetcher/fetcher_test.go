package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

type zipEntry struct {
	name string
	body string
	mode os.FileMode
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		if e.body != "" {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newReleaseServer(t *testing.T, version string, archives map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/LATEST_RELEASE", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(version + "\n"))
	})
	for path, body := range archives {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/zip")
			_, _ = w.Write(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	archive := buildZip(t, zipEntry{name: "chromedriver", body: "binary cdc_ payload", mode: 0o755})
	srv := newReleaseServer(t, "114.0.5735.90", map[string][]byte{
		"/114.0.5735.90/chromedriver_linux64.zip": archive,
	})

	dir := t.TempDir()
	f := New(srv.Client(), srv.URL+"/", zaptest.NewLogger(t))

	version, err := f.Fetch(context.Background(), platform.Linux, dir)
	require.NoError(t, err)
	assert.Equal(t, "114.0.5735.90", version)

	content, err := os.ReadFile(filepath.Join(dir, "chromedriver"))
	require.NoError(t, err)
	assert.Equal(t, "binary cdc_ payload", string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "chromedriver"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
}

func TestFetch_NestedArchive(t *testing.T) {
	archive := buildZip(t,
		zipEntry{name: "chromedriver-win32/"},
		zipEntry{name: "chromedriver-win32/chromedriver.exe", body: "MZ"},
		zipEntry{name: "chromedriver-win32/LICENSE.chromedriver", body: "license"},
	)
	srv := newReleaseServer(t, "120.0.0.0", map[string][]byte{
		"/120.0.0.0/chromedriver_win32.zip": archive,
	})

	dir := t.TempDir()
	f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))

	_, err := f.Fetch(context.Background(), platform.Windows, dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "chromedriver.exe"))
	assert.FileExists(t, filepath.Join(dir, "chromedriver-win32", "LICENSE.chromedriver"))
}

func TestFetch_MissingExecutable(t *testing.T) {
	archive := buildZip(t, zipEntry{name: "README", body: "nothing here"})
	srv := newReleaseServer(t, "1.0", map[string][]byte{
		"/1.0/chromedriver_mac64.zip": archive,
	})

	f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), platform.MacOS, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not contain chromedriver")
}

func TestFetch_HTTPErrors(t *testing.T) {
	t.Run("latest release not found", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))
		_, err := f.Fetch(context.Background(), platform.Linux, t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("empty version", func(t *testing.T) {
		srv := newReleaseServer(t, "  ", nil)
		f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))
		_, err := f.LatestRelease(context.Background())
		assert.ErrorContains(t, err, "empty version")
	})

	t.Run("archive missing", func(t *testing.T) {
		srv := newReleaseServer(t, "2.0", nil)
		f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))
		_, err := f.Fetch(context.Background(), platform.Linux, t.TempDir())
		assert.ErrorContains(t, err, "failed to download chromedriver 2.0")
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := newReleaseServer(t, "2.0", nil)
		f := New(srv.Client(), srv.URL, zaptest.NewLogger(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.LatestRelease(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestArchiveURL(t *testing.T) {
	f := New(http.DefaultClient, "https://chromedriver.storage.googleapis.com/", nil)
	assert.Equal(t,
		"https://chromedriver.storage.googleapis.com/114.0/chromedriver_linux64.zip",
		f.ArchiveURL("114.0", platform.Linux))
	assert.Equal(t,
		"https://chromedriver.storage.googleapis.com/114.0/chromedriver_mac64.zip",
		f.ArchiveURL("114.0", platform.MacOS))
	assert.Equal(t,
		"https://chromedriver.storage.googleapis.com/114.0/chromedriver_win32.zip",
		f.ArchiveURL("114.0", platform.Windows))
}

func TestExtract_RejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil", "a/../../evil", "/etc/evil"} {
		t.Run(name, func(t *testing.T) {
			parent := t.TempDir()
			dir := filepath.Join(parent, "out")
			require.NoError(t, os.Mkdir(dir, 0o755))

			_, err := Extract(buildZip(t, zipEntry{name: name, body: "x"}), dir)
			assert.ErrorIs(t, err, ErrUnsafeArchive)
			assert.NoFileExists(t, filepath.Join(parent, "evil"))
		})
	}
}

func TestExtract_InvalidArchive(t *testing.T) {
	_, err := Extract([]byte("not a zip"), t.TempDir())
	assert.ErrorContains(t, err, "failed to open archive")
}

func TestNewClient(t *testing.T) {
	client := NewClient(nil)
	assert.Equal(t, DefaultRequestTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, DefaultTLSHandshakeTimeout, transport.TLSHandshakeTimeout)
	assert.NotNil(t, transport.TLSClientConfig)
}
