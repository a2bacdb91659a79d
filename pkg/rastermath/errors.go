package rastermath

import "fmt"

// ConfigurationError reports an invalid setup: bad block size, bad
// dimensions, operations registered at the wrong time. It is raised eagerly,
// before any block work starts.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "rastermath: configuration: " + e.Msg
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// GeometryMismatchError reports inputs, outputs or mask whose extent,
// resolution or projection disagree.
type GeometryMismatchError struct {
	Msg string
}

func (e *GeometryMismatchError) Error() string {
	return "rastermath: geometry mismatch: " + e.Msg
}

func geometryErrorf(format string, args ...any) *GeometryMismatchError {
	return &GeometryMismatchError{Msg: fmt.Sprintf(format, args...)}
}

// IOError wraps a raster read, write or flush failure. Block is the index of
// the block being processed, or -1 when the failure is not tied to a block.
type IOError struct {
	Op     string
	Block  int
	Window Window
	Err    error
}

func (e *IOError) Error() string {
	if e.Block < 0 {
		return fmt.Sprintf("rastermath: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rastermath: %s block %d (%d,%d %dx%d): %v",
		e.Op, e.Block, e.Window.X, e.Window.Y, e.Window.Width, e.Window.Height, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ComputeError reports a user function that returned an error or produced an
// output of the wrong shape for its OutputSpec.
type ComputeError struct {
	Block  int
	Window Window
	Err    error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("rastermath: compute block %d (%d,%d %dx%d): %v",
		e.Block, e.Window.X, e.Window.Y, e.Window.Width, e.Window.Height, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }
