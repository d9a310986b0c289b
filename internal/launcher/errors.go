package launcher

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunchTimeout is matched by LaunchTimeoutError via errors.Is.
	ErrLaunchTimeout = errors.New("launch timeout")
	// ErrProcessExited is matched by ProcessExitedError via errors.Is.
	ErrProcessExited = errors.New("driver process exited")
)

// LaunchTimeoutError is returned when every connection attempt failed. The
// spawned driver has already been stopped; callers may launch again, which
// picks a new port and spawns a fresh process.
type LaunchTimeoutError struct {
	Attempts int
	Port     int
	LastErr  error
}

func (e *LaunchTimeoutError) Error() string {
	return fmt.Sprintf("no session on port %d after %d attempts: %v", e.Port, e.Attempts, e.LastErr)
}

func (e *LaunchTimeoutError) Is(target error) bool {
	return target == ErrLaunchTimeout
}

func (e *LaunchTimeoutError) Unwrap() error {
	return e.LastErr
}

// ProcessExitedError is returned when the driver exits before a session could
// be established, typically because the executable is missing or broken.
type ProcessExitedError struct {
	PID int
	Err error
}

func (e *ProcessExitedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("driver process %d exited before accepting a session", e.PID)
	}
	return fmt.Sprintf("driver process %d exited before accepting a session: %v", e.PID, e.Err)
}

func (e *ProcessExitedError) Is(target error) bool {
	return target == ErrProcessExited
}

func (e *ProcessExitedError) Unwrap() error {
	return e.Err
}
