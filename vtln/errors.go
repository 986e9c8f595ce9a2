package vtln

import "github.com/pkg/errors"

// Error categories. Callers test with errors.Is; every failure aborts the
// whole training run, nothing is retried and no partial result is returned.
var (
	// ErrValidation marks malformed configuration: unknown normalization
	// type, an inverted warp grid, or a grouping request the trainer
	// cannot honor.
	ErrValidation = errors.New("invalid configuration")

	// ErrNotInitialized marks estimation invoked before the model was
	// constructed, or a caller-supplied UBM that was never trained.
	ErrNotInitialized = errors.New("not initialized")

	// ErrDataMismatch marks missing or mis-shaped per-unit data: absent
	// posteriors or weights, or row/column counts that disagree between
	// paired feature sets.
	ErrDataMismatch = errors.New("data mismatch")

	// ErrIOConflict marks a save target that already exists or a load
	// target that does not.
	ErrIOConflict = errors.New("io conflict")
)
