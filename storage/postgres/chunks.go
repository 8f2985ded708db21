package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// CommitChunks inserts every chunk and marks the document ready in a single
// transaction.
func (s *Store) CommitChunks(ctx context.Context, id core.DocumentID, chunks []core.Chunk) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM rag_files WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			return translate(err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO rag_chunks (file_id, ordinal, chunk, embedding) VALUES ($1, $2, $3, $4::vector)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()

		for i, chunk := range chunks {
			if _, err := stmt.ExecContext(ctx, id, i, chunk.Text, pgvector.NewVector(chunk.Vector)); err != nil {
				return fmt.Errorf("inserting chunk %d: %w", i+1, translate(err))
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE rag_files SET status = $2, chunk_count = $3 WHERE id = $1`,
			id, core.DocumentReady, len(chunks))
		if err != nil {
			return fmt.Errorf("marking document ready: %w", err)
		}
		return nil
	})
}

const similarityAll = `
	SELECT c.file_id, c.ordinal, c.chunk, c.embedding::text, 1 - (c.embedding <=> $1::vector) AS similarity
	FROM rag_chunks c
	JOIN rag_files f ON f.id = c.file_id
	WHERE f.status = 'ready' AND vector_dims(c.embedding) = vector_dims($1::vector)
	ORDER BY similarity DESC, f.created_at, c.file_id, c.ordinal
	LIMIT $2
`

const similarityScoped = `
	SELECT c.file_id, c.ordinal, c.chunk, c.embedding::text, 1 - (c.embedding <=> $1::vector) AS similarity
	FROM rag_chunks c
	JOIN rag_files f ON f.id = c.file_id
	WHERE f.status = 'ready' AND vector_dims(c.embedding) = vector_dims($1::vector) AND c.file_id = ANY($3)
	ORDER BY similarity DESC, f.created_at, c.file_id, c.ordinal
	LIMIT $2
`

// FindSimilar ranks chunks by pgvector cosine distance. Scope is applied in
// the WHERE clause.
func (s *Store) FindSimilar(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if err := core.ValidateScope(scope); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	var rows *sql.Rows
	var err error
	if scope.All() {
		rows, err = s.db.QueryContext(ctx, similarityAll, pgvector.NewVector(vector), k)
	} else {
		ids := make([]string, len(scope.DocumentIDs()))
		for i, id := range scope.DocumentIDs() {
			ids[i] = string(id)
		}
		rows, err = s.db.QueryContext(ctx, similarityScoped, pgvector.NewVector(vector), k, pq.Array(ids))
	}
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := []core.ScoredChunk{}
	for rows.Next() {
		var hit core.ScoredChunk
		var embedding pgvector.Vector
		var score float64
		if err := rows.Scan(&hit.DocumentID, &hit.Ordinal, &hit.Text, &embedding, &score); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		hit.Vector = embedding.Slice()
		hit.Score = float32(score)
		results = append(results, hit)
	}
	return results, rows.Err()
}

// DocumentChunks reads a document's chunks ordered by ordinal.
func (s *Store) DocumentChunks(ctx context.Context, id core.DocumentID) ([]core.Chunk, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM rag_files WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, chunk, embedding::text FROM rag_chunks WHERE file_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	defer rows.Close()

	chunks := []core.Chunk{}
	for rows.Next() {
		chunk := core.Chunk{DocumentID: id}
		var embedding pgvector.Vector
		if err := rows.Scan(&chunk.Ordinal, &chunk.Text, &embedding); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Vector = embedding.Slice()
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// UpdateVectors rewrites the embeddings of a document's chunks in a single
// transaction, holding the document row lock throughout.
func (s *Store) UpdateVectors(ctx context.Context, id core.DocumentID, vectors [][]float32) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx, `SELECT chunk_count FROM rag_files WHERE id = $1 FOR UPDATE`, id).Scan(&count)
		if err != nil {
			return translate(err)
		}
		if count != len(vectors) {
			return fmt.Errorf("%w: %d vectors for %d chunks", storage.ErrChunkCountMismatch, len(vectors), count)
		}

		stmt, err := tx.PrepareContext(ctx, `UPDATE rag_chunks SET embedding = $3::vector WHERE file_id = $1 AND ordinal = $2`)
		if err != nil {
			return fmt.Errorf("preparing vector update: %w", err)
		}
		defer stmt.Close()

		for i, v := range vectors {
			if _, err := stmt.ExecContext(ctx, id, i, pgvector.NewVector(v)); err != nil {
				return fmt.Errorf("updating chunk %d: %w", i+1, err)
			}
		}
		return nil
	})
}
