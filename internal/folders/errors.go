package folders

import (
	"errors"

	"github.com/crosve/Csphere/internal/vecmath"
)

// Common errors for folder matching and profile learning.
var (
	ErrFolderNotFound     = errors.New("folder not found")
	ErrContentNotFound    = errors.New("content not found")
	ErrFolderItemNotFound = errors.New("folder item not found")
	ErrUserNotFound       = errors.New("user not found")

	// ErrVersionConflict means a profile write lost a compare-and-swap race.
	ErrVersionConflict = errors.New("folder version conflict")

	// ErrRecallFailure wraps vector index failures during candidate recall.
	ErrRecallFailure = errors.New("candidate recall failed")

	// ErrStorageFailure wraps relational store failures.
	ErrStorageFailure = errors.New("storage failure")

	ErrMalformedPattern       = errors.New("malformed url pattern")
	ErrEmbeddingOracleFailure = errors.New("embedding oracle failure")
	ErrInvalidInput           = errors.New("invalid input")

	// ErrDimensionMismatch is shared with vecmath so failures from Blend,
	// PushAway, Centroid and Cosine match it too.
	ErrDimensionMismatch = vecmath.ErrDimensionMismatch
)

// IsRetryable reports whether err is a transient infrastructure failure the
// caller should retry later (recall, storage, lost CAS race).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecallFailure) ||
		errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrVersionConflict)
}
