package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// chunkValue is the stored form of a chunk. The document and ordinal live
// in the key.
type chunkValue struct {
	Text   string
	Vector []float32
}

type chunkValueSer struct{}

func (chunkValueSer) Marshal(v chunkValue, bs []byte) (n int) {
	n = ord.String.Marshal(v.Text, bs)
	n += storage.VectorMUS.Marshal(v.Vector, bs[n:])
	return
}

func (chunkValueSer) Unmarshal(bs []byte) (v chunkValue, n int, err error) {
	v.Text, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Vector, n1, err = storage.VectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (chunkValueSer) Size(v chunkValue) int {
	return ord.String.Size(v.Text) + storage.VectorMUS.Size(v.Vector)
}

func (s chunkValueSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

var chunkValueMUS mus.Serializer[chunkValue] = chunkValueSer{}

// CommitChunks writes a document's chunks through a write batch, then flips
// the document to ready in a single transaction. Chunk ordinals are
// reassigned from slice position.
func (s *Store) CommitChunks(ctx context.Context, id core.DocumentID, chunks []core.Chunk) error {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}

	wb := s.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for i, chunk := range chunks {
		value := storage.Marshal(chunkValueMUS, chunkValue{Text: chunk.Text, Vector: chunk.Vector})
		if err := wb.Set(makeChunkKey(id, i), value); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readValue(tx, key, storage.DocumentMUS)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		doc.Status = core.DocumentReady
		doc.ChunkCount = len(chunks)
		if err := writeValue(tx, key, storage.DocumentMUS, *doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		// The document vanished while chunks were being written.
		if cleanupErr := s.deleteChunks(id); cleanupErr != nil {
			s.logger.Warn("failed to remove chunks of missing document", "document_id", id, "err", cleanupErr)
		}
		return err
	}
	return nil
}

// FindSimilar scans the chunks of ready documents in scope. Only the key
// ranges of scoped documents are iterated.
func (s *Store) FindSimilar(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if err := core.ValidateScope(scope); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	var results []core.ScoredChunk
	var docs []*core.Document

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		docs, err = readyDocuments(tx, scope)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			hits, err := scoreDocument(tx, doc.ID, vector)
			if err != nil {
				return err
			}
			results = append(results, hits...)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	createdAt := make(map[core.DocumentID]int64, len(docs))
	for _, doc := range docs {
		createdAt[doc.ID] = doc.CreatedAt.UnixNano()
	}

	slices.SortStableFunc(results, func(a, b core.ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(createdAt[a.DocumentID], createdAt[b.DocumentID]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DocumentID, b.DocumentID); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []core.ScoredChunk{}
	}
	return results, nil
}

func readyDocuments(tx *badger.Txn, scope core.Scope) ([]*core.Document, error) {
	var candidates []*core.Document
	if scope.All() {
		all, err := scanDocuments(tx)
		if err != nil {
			return nil, err
		}
		candidates = all
	} else {
		for _, id := range scope.DocumentIDs() {
			doc, err := readValue(tx, makeDocumentKey(id), storage.DocumentMUS)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				candidates = append(candidates, doc)
			}
		}
	}

	ready := candidates[:0]
	for _, doc := range candidates {
		if doc.Status == core.DocumentReady {
			ready = append(ready, doc)
		}
	}
	return ready, nil
}

func scoreDocument(tx *badger.Txn, id core.DocumentID, vector []float32) ([]core.ScoredChunk, error) {
	chunks, err := readChunks(tx, id)
	if err != nil {
		return nil, err
	}

	var hits []core.ScoredChunk
	for _, chunk := range chunks {
		// Vectors from a different embedding model cannot be compared.
		if len(chunk.Vector) != len(vector) {
			continue
		}
		hits = append(hits, core.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(vector, chunk.Vector),
		})
	}
	return hits, nil
}

// readChunks returns a document's chunks in ordinal order.
func readChunks(tx *badger.Txn, id core.DocumentID) ([]core.Chunk, error) {
	prefix := makeChunkPrefix(id)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var chunks []core.Chunk
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		ordinal := int(ordinalSuffix(item.Key()[len(prefix):]))

		var value *chunkValue
		err := item.Value(func(val []byte) error {
			var err error
			value, err = storage.Unmarshal(chunkValueMUS, val)
			return err
		})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, core.Chunk{
			DocumentID: id,
			Ordinal:    ordinal,
			Text:       value.Text,
			Vector:     value.Vector,
		})
	}
	return chunks, nil
}

// DocumentChunks reads a document's chunks in a single read transaction.
func (s *Store) DocumentChunks(ctx context.Context, id core.DocumentID) ([]core.Chunk, error) {
	var chunks []core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readValue(tx, makeDocumentKey(id), storage.DocumentMUS)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		chunks, err = readChunks(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []core.Chunk{}
	}
	return chunks, nil
}

// UpdateVectors rewrites every chunk of the document in one transaction,
// keeping the stored text.
func (s *Store) UpdateVectors(ctx context.Context, id core.DocumentID, vectors [][]float32) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readValue(tx, makeDocumentKey(id), storage.DocumentMUS)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		chunks, err := readChunks(tx, id)
		if err != nil {
			return err
		}
		if len(chunks) != len(vectors) {
			return fmt.Errorf("%w: %d vectors for %d chunks", storage.ErrChunkCountMismatch, len(vectors), len(chunks))
		}
		for _, chunk := range chunks {
			err := writeValue(tx, makeChunkKey(id, chunk.Ordinal), chunkValueMUS, chunkValue{
				Text:   chunk.Text,
				Vector: vectors[chunk.Ordinal],
			})
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}
