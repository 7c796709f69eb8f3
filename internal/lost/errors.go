package lost

import "errors"

// Cycle errors. Every kind except ErrCorruptGrid and ErrHalted is recovered
// inside the per-scan run: the cycle is skipped and the previous result stays
// the last-known value.
var (
	// ErrInvalidInput reports a malformed scan (angle parameters do not
	// match the number of ranges).
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransformUnavailable reports that no transform between the
	// requested frames became available before the wait timed out.
	ErrTransformUnavailable = errors.New("transform unavailable")

	// ErrTransformExtrapolation reports a lookup time outside the buffered
	// validity window of at least one edge of the transform chain.
	ErrTransformExtrapolation = errors.New("transform extrapolation")

	// ErrNotReady reports that no occupancy grid has been received yet.
	ErrNotReady = errors.New("map not ready")

	// ErrNotComputable reports that no point produced a valid grid index,
	// leaving the lost rate undefined.
	ErrNotComputable = errors.New("lost rate not computable")

	// ErrFrameMismatch reports a point set expressed in a frame other than
	// the one the consumer requires.
	ErrFrameMismatch = errors.New("frame mismatch")

	// ErrCorruptGrid reports unusable grid metadata. It is fatal: processing
	// halts until a valid grid replaces the corrupt one.
	ErrCorruptGrid = errors.New("corrupt occupancy grid")

	// ErrHalted is returned for every scan while the estimator is halted by
	// a corrupt grid.
	ErrHalted = errors.New("estimator halted")
)

// IsSkippable reports whether err only skips the current cycle.
func IsSkippable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCorruptGrid), errors.Is(err, ErrHalted):
		return false
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrTransformUnavailable),
		errors.Is(err, ErrTransformExtrapolation),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrNotComputable),
		errors.Is(err, ErrFrameMismatch):
		return true
	}
	return false
}
