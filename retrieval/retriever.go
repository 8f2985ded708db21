package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// DefaultK is the number of chunks retrieved per query.
const DefaultK = 5

// Embedder turns a text query into a vector. embedding.Gateway satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds the chunks most similar to a query inside a document scope.
type Retriever struct {
	chunks   storage.ChunkRepository
	embedder Embedder
	minScore float32
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithEmbedder enables RetrieveText.
func WithEmbedder(e Embedder) Option {
	return func(r *Retriever) error {
		r.embedder = e
		return nil
	}
}

// WithMinScore drops hits scoring below min. Default keeps every hit.
func WithMinScore(min float32) Option {
	return func(r *Retriever) error {
		r.minScore = min
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(chunks storage.ChunkRepository, opts ...Option) (*Retriever, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}

	r := &Retriever{
		chunks:   chunks,
		minScore: -1,
		logger:   slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Retrieve returns at most k chunks ordered by non-increasing similarity.
// The scope is passed down to the store query. An empty result is not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := core.ValidateScope(scope); err != nil {
		return nil, err
	}

	hits, err := r.chunks.FindSimilar(ctx, vector, scope, k)
	if err != nil {
		r.logger.Error("similarity search failed", "err", err)
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]core.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if !scope.Contains(hit.DocumentID) {
			r.logger.Error("store returned chunk outside scope", "document_id", hit.DocumentID)
			continue
		}
		if hit.Score < r.minScore {
			continue
		}
		results = append(results, hit)
	}

	r.logger.Debug("retrieved chunks", "hits", len(results), "k", k, "all_documents", scope.All())
	return results, nil
}

// RetrieveText embeds query and retrieves against it.
func (r *Retriever) RetrieveText(ctx context.Context, query string, scope core.Scope, k int) ([]core.ScoredChunk, error) {
	if r.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	return r.Retrieve(ctx, vector, scope, k)
}

// Texts extracts chunk texts in rank order.
func Texts(chunks []core.ScoredChunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
