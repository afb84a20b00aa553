package catalog

import "errors"

// Error kinds returned by the catalog. Lower-layer errors are wrapped alongside these,
// so errors.Is matches both the kind and the underlying cause.
var (
	// ErrNotReady means the index holds no vectors yet.
	ErrNotReady = errors.New("index is not ready or is empty")
	// ErrMissingField means a submitted document lacks a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidArgument means a request parameter is out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch means persisted vectors or the configured embedder disagree with
	// the catalog dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrIOFailure means persisting the catalog failed and the mutation was rolled back.
	ErrIOFailure = errors.New("persistence failed")
)

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrDimensionMismatch)
}
