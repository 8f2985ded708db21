package storage

import (
	"context"
	"time"

	"github.com/poiesic/docreply/core"
)

// DocumentRepository provides operations for managing documents.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// CreateDocument stores a new document in the pending state.
	// Sets CreatedAt if not already set.
	// Returns ErrDuplicateKey if a document with the same ID exists.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.DocumentID) (*core.Document, error)

	// ListDocuments returns every document, newest first.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// DeleteDocument removes a document together with its chunks and every
	// bound mapping that references it.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.DocumentID) error
}

// ChunkRepository provides chunk persistence and similarity search.
type ChunkRepository interface {
	// CommitChunks writes the full chunk set of a pending document and marks
	// the document ready. Readers never observe a partial chunk set: chunks
	// of a pending document are invisible to FindSimilar.
	// Returns ErrNotFound if the document doesn't exist.
	CommitChunks(ctx context.Context, id core.DocumentID, chunks []core.Chunk) error

	// FindSimilar returns up to k chunks of ready documents inside scope,
	// ordered by descending cosine similarity. Equal scores are ordered by
	// document creation time, then document ID, then chunk ordinal.
	// Returns an empty slice when nothing is in scope.
	FindSimilar(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error)

	// DocumentChunks returns every chunk of a document in ordinal order.
	// Returns ErrNotFound if the document doesn't exist.
	DocumentChunks(ctx context.Context, id core.DocumentID) ([]core.Chunk, error)

	// UpdateVectors replaces the vectors of a document's chunks atomically.
	// vectors[i] belongs to the chunk with ordinal i; a count that differs
	// from the stored chunk count is rejected with ErrChunkCountMismatch.
	UpdateVectors(ctx context.Context, id core.DocumentID, vectors [][]float32) error
}

// MappingRepository provides operations for tenant mappings.
type MappingRepository interface {
	// AddMapping stores a new mapping, assigning its ID and CreatedAt.
	// Returns the stored mapping.
	AddMapping(ctx context.Context, m core.Mapping) (core.Mapping, error)

	// SaveMapping replaces an existing mapping, matched by ID.
	// Returns ErrNotFound if the mapping doesn't exist.
	SaveMapping(ctx context.Context, m core.Mapping) error

	// BindMapping turns the placeholder with m.ID into m, provided it is
	// still unbound. Returns ErrConflict if another writer bound it first
	// and ErrNotFound if it no longer exists.
	BindMapping(ctx context.Context, m core.BoundMapping) error

	// MappingsByPhone returns a phone's mappings, oldest first.
	MappingsByPhone(ctx context.Context, phone string) ([]core.Mapping, error)

	// ListMappings returns every mapping, ordered by phone then age.
	ListMappings(ctx context.Context) ([]core.Mapping, error)

	// DeleteMapping removes a mapping by ID.
	// Returns ErrNotFound if the mapping doesn't exist.
	DeleteMapping(ctx context.Context, id core.ID) error
}

// ConversationRepository provides the append-only conversation log.
type ConversationRepository interface {
	// AppendTurn stores a turn, assigning its ID and, if unset, its Timestamp.
	AppendTurn(ctx context.Context, turn *core.ConversationTurn) error

	// RecentTurns returns up to limit of the most recent turns for key,
	// oldest first.
	RecentTurns(ctx context.Context, key core.ConversationKey, limit int) ([]core.ConversationTurn, error)
}

// EventRepository records inbound events for at-most-once processing.
type EventRepository interface {
	// AddEvent records an event keyed by its external ID. The check and the
	// insert are atomic: of two concurrent calls with the same ID exactly one
	// succeeds and the other returns ErrDuplicateKey.
	AddEvent(ctx context.Context, event *core.InboundEvent) error

	// GetEvent retrieves an event by its external ID.
	// Returns ErrNotFound if the event doesn't exist.
	GetEvent(ctx context.Context, id string) (*core.InboundEvent, error)

	// MarkEvent records the processing status of an event.
	// Returns ErrNotFound if the event doesn't exist.
	MarkEvent(ctx context.Context, id string, status core.EventStatus, at time.Time) error
}

// Store aggregates every repository behind a single backend.
type Store interface {
	DocumentRepository
	ChunkRepository
	MappingRepository
	ConversationRepository
	EventRepository

	// Close releases the backend.
	Close() error
}
