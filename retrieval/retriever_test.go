package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docreply/ai/mock"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) (*badger.Store, core.DocumentID, core.DocumentID) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	add := func(name string, created time.Time, chunks ...core.Chunk) core.DocumentID {
		doc := &core.Document{ID: core.NewDocumentID(), Name: name, Kind: core.KindPDF, CreatedAt: created}
		require.NoError(t, store.CreateDocument(ctx, doc))
		require.NoError(t, store.CommitChunks(ctx, doc.ID, chunks))
		return doc.ID
	}

	a := add("a", now,
		core.Chunk{Text: "opening hours", Vector: []float32{1, 0, 0}},
		core.Chunk{Text: "prices", Vector: []float32{0.6, 0.8, 0}},
	)
	b := add("b", now.Add(time.Second),
		core.Chunk{Text: "other tenant", Vector: []float32{1, 0, 0}},
	)
	return store, a, b
}

func TestNewRetriever(t *testing.T) {
	_, err := NewRetriever(nil)
	assert.Equal(t, ErrChunkRepositoryRequired, err)

	store, _, _ := seedStore(t)
	r, err := NewRetriever(store, WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRetrieve_ScopedToTenant(t *testing.T) {
	store, a, b := seedStore(t)
	r, err := NewRetriever(store)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, core.DocumentScope(a), 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, hit := range results {
		assert.Equal(t, a, hit.DocumentID)
		assert.NotEqual(t, b, hit.DocumentID)
	}
	assert.Equal(t, []string{"opening hours", "prices"}, Texts(results))
}

func TestRetrieve_SortedAndLimited(t *testing.T) {
	store, a, _ := seedStore(t)
	r, err := NewRetriever(store)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, core.AllDocuments(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	// Equal scores fall back to document age.
	assert.Equal(t, a, results[0].DocumentID)
}

func TestRetrieve_EmptyIsNotError(t *testing.T) {
	store, _, _ := seedStore(t)
	r, err := NewRetriever(store)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, core.DocumentScope("unknown"), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_Validation(t *testing.T) {
	store, _, _ := seedStore(t)
	r, err := NewRetriever(store)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), []float32{1}, core.AllDocuments(), 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = r.Retrieve(context.Background(), []float32{1}, core.DocumentScope(), 3)
	assert.ErrorIs(t, err, core.ErrEmptyScope)
}

func TestRetrieve_MinScore(t *testing.T) {
	store, a, _ := seedStore(t)
	r, err := NewRetriever(store, WithMinScore(0.9))
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, core.DocumentScope(a), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "opening hours", results[0].Text)
}

// leakyRepo ignores scope, as a broken store would.
type leakyRepo struct {
	hits []core.ScoredChunk
}

func (l *leakyRepo) CommitChunks(ctx context.Context, id core.DocumentID, chunks []core.Chunk) error {
	return nil
}

func (l *leakyRepo) FindSimilar(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error) {
	return l.hits, nil
}

func (l *leakyRepo) DocumentChunks(ctx context.Context, id core.DocumentID) ([]core.Chunk, error) {
	return nil, nil
}

func (l *leakyRepo) UpdateVectors(ctx context.Context, id core.DocumentID, vectors [][]float32) error {
	return nil
}

func TestRetrieve_DropsOutOfScopeHits(t *testing.T) {
	repo := &leakyRepo{hits: []core.ScoredChunk{
		{Chunk: core.Chunk{DocumentID: "mine", Text: "ok"}, Score: 0.9},
		{Chunk: core.Chunk{DocumentID: "theirs", Text: "leak"}, Score: 0.8},
	}}
	r, err := NewRetriever(repo)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), []float32{1}, core.DocumentScope("mine"), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, Texts(results))
}

type embedFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func TestRetrieveText(t *testing.T) {
	store, a, _ := seedStore(t)

	r, err := NewRetriever(store)
	require.NoError(t, err)
	_, err = r.RetrieveText(context.Background(), "hours", core.AllDocuments(), 3)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	embedder := mock.NewMockEmbedder()
	r, err = NewRetriever(store, WithEmbedder(embedFunc(func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedText(ctx, text)
	})))
	require.NoError(t, err)
	_, err = r.RetrieveText(context.Background(), "hours", core.DocumentScope(a), 3)
	require.NoError(t, err)

	boom := errors.New("boom")
	r, err = NewRetriever(store, WithEmbedder(embedFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	})))
	require.NoError(t, err)
	_, err = r.RetrieveText(context.Background(), "hours", core.AllDocuments(), 3)
	assert.ErrorIs(t, err, boom)
}
