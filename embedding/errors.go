package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when a nil embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyVector is returned when the provider yields an empty embedding.
	ErrEmptyVector = errors.New("provider returned an empty embedding")

	// ErrDimensionMismatch is returned when vectors in one batch differ in length.
	ErrDimensionMismatch = errors.New("embedding dimensions differ within batch")

	// ErrInvalidGroupSize is returned for a non-positive batch group size.
	ErrInvalidGroupSize = errors.New("group size must be greater than 0")

	// ErrInvalidMaxRetries is returned for a negative retry cap.
	ErrInvalidMaxRetries = errors.New("max retries cannot be negative")
)
