package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when searching an index that holds no vectors.
	ErrNotReady = errors.New("vector: index is empty")
	// ErrInvalidK is returned when k is less than 1.
	ErrInvalidK = errors.New("vector: k must be at least 1")
	// ErrNonFinite is returned when a vector holds NaN or an infinity.
	ErrNonFinite = errors.New("vector: component is not finite")
)

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	// Offset is the position of the offending vector within the submitted batch (0 for queries).
	Offset int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector: dimension mismatch at offset %d: expected %d, got %d", e.Offset, e.Expected, e.Actual)
}
