package patcher

import (
	"errors"
	"fmt"
)

// ErrCorruptRegion is matched by CorruptRegionError via errors.Is.
var ErrCorruptRegion = errors.New("corrupt marker region")

// CorruptRegionError means a marker sits too close to the end of the image for
// its full region to be overwritten. The image layout no longer matches what
// the patcher expects, so nothing is truncated or written.
type CorruptRegionError struct {
	Offset int
	Width  int
	Size   int
}

func (e *CorruptRegionError) Error() string {
	return fmt.Sprintf("corrupt marker region: %d bytes at offset %d overrun image of %d bytes", e.Width, e.Offset, e.Size)
}

func (e *CorruptRegionError) Is(target error) bool {
	return target == ErrCorruptRegion
}

// IOError wraps a filesystem failure on the source or patched executable.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
