//go:build !unix && !windows

package patcher

import "os"

// No advisory locking on this target; the in-process semaphore still applies.
func tryLockFile(*os.File) error { return nil }
func unlockFile(*os.File) error  { return nil }
