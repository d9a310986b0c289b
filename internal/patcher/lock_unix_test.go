//go:build unix

package patcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPath_WaitsForOtherHolder(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "chromedriver_PATCHED")

	// A separate open file description conflicts with lockPath like another process would.
	other, err := os.OpenFile(dst+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, tryLockFile(other))

	ctx, cancel := context.WithTimeout(context.Background(), 3*lockPollInterval)
	defer cancel()
	_, err = lockPath(ctx, dst)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	released := make(chan struct{})
	go func() {
		time.Sleep(2 * lockPollInterval)
		_ = unlockFile(other)
		close(released)
	}()

	unlock, err := lockPath(context.Background(), dst)
	require.NoError(t, err)
	<-released
	unlock()

	assert.FileExists(t, dst+".lock")
}
