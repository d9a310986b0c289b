package patcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pathLocks serializes patch runs inside this process, keyed by the absolute
// output path. Each value is a one-slot semaphore so waiting can be cancelled.
// The advisory file lock covers other processes.
var pathLocks sync.Map

// lockPollInterval is how often a lock held by another process is retried.
const lockPollInterval = 50 * time.Millisecond

// errLockBusy is returned by tryLockFile when another holder has the lock.
var errLockBusy = errors.New("lock is held elsewhere")

// lockPath takes the in-process and the advisory lock for path, giving up when
// ctx ends. The <path>.lock file is left in place after unlocking: removing it
// would let a waiter that already opened it lock an unlinked inode.
func lockPath(ctx context.Context, path string) (func(), error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	v, _ := pathLocks.LoadOrStore(key, make(chan struct{}, 1))
	sem := v.(chan struct{})

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-sem }

	lockName := path + ".lock"
	f, err := os.OpenFile(lockName, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		release()
		return nil, &IOError{Op: "lock", Path: lockName, Err: err}
	}

	for {
		err := tryLockFile(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errLockBusy) {
			f.Close()
			release()
			return nil, &IOError{Op: "lock", Path: lockName, Err: fmt.Errorf("advisory lock: %w", err)}
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			f.Close()
			release()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		_ = unlockFile(f)
		f.Close()
		release()
	}, nil
}
