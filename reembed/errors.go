package reembed

import "errors"

var (
	// ErrDocumentsRequired is returned when no document repository is given.
	ErrDocumentsRequired = errors.New("document repository is required")

	// ErrChunksRequired is returned when no chunk repository is given.
	ErrChunksRequired = errors.New("chunk repository is required")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrIncomplete is returned when at least one document kept its old vectors.
	ErrIncomplete = errors.New("some documents were not reembedded")
)
