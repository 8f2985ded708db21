package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

const documentColumns = `id, name, kind, auth_token, origin, checksum, status, chunk_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	doc := &core.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.Kind,
		&doc.Credentials.AuthToken,
		&doc.Credentials.Origin,
		&doc.Checksum,
		&doc.Status,
		&doc.ChunkCount,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateDocument inserts a pending document.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) error {
	if doc == nil || doc.ID == "" {
		return storage.ErrInvalidQuery
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Status = core.DocumentPending
	doc.ChunkCount = 0

	query := `
		INSERT INTO rag_files (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Name,
		doc.Kind,
		doc.Credentials.AuthToken,
		doc.Credentials.Origin,
		doc.Checksum,
		doc.Status,
		doc.ChunkCount,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating document: %w", translate(err))
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM rag_files WHERE id = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return doc, nil
}

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM rag_files ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its bound mappings in one
// transaction. Chunks go with the document through ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id core.DocumentID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM rag_files WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM phone_document_mapping WHERE file_id = $1`, id); err != nil {
			return fmt.Errorf("deleting mappings: %w", err)
		}
		return nil
	})
}
