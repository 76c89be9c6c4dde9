// Package ghErr defines the pipeline's exception taxonomy (spec §6/§7) as
// sentinel errors matched with errors.Is, while keeping the same substrings
// the Python original used so any caller still watching error text
// (diagnostics, logs) keeps working.
package ghErr

import "errors"

var (
	// ErrDiskFull covers "database or disk is full" and "No space left on device".
	ErrDiskFull = errors.New("database or disk is full: No space left on device")
	// ErrDBLocked covers sqlite "database is locked".
	ErrDBLocked = errors.New("database is locked")
	// ErrAreaTooLarge is raised during zoom probing; consumed internally.
	ErrAreaTooLarge = errors.New("requested area: Max retries exceeded for provider request")
	// ErrGPUUnavailable signals the crop engine's GPU path failed to init
	// or a kernel raised at runtime; the controller falls back to CPU.
	ErrGPUUnavailable = errors.New("GpuUnavailable: gpu crop path unavailable")
	// ErrCancelled is returned by stages when a cancellation was observed.
	ErrCancelled = errors.New("pipeline stage cancelled")
	// ErrNoOverlap marks the no-overlap crop scenario; not a failure.
	ErrNoOverlap = errors.New("polygon does not overlap stitched canvas")
)

// IsFatal reports whether err should halt the current stage outright
// (disk full, DB locked) as opposed to being recorded per-tile and
// continuing (transient network, area-too-large).
func IsFatal(err error) bool {
	return errors.Is(err, ErrDiskFull) || errors.Is(err, ErrDBLocked)
}

// IsGPUUnavailable reports whether err is (or wraps) ErrGPUUnavailable,
// the signal the crop engine uses to fall a block back to the CPU path.
func IsGPUUnavailable(err error) bool {
	return errors.Is(err, ErrGPUUnavailable)
}
