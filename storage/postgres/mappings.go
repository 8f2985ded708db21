package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

const mappingColumns = `id, phone_number, file_id, intent, system_prompt, auth_token, origin, created_at`

// A NULL file_id marks an unbound placeholder.
func scanMapping(row rowScanner) (core.Mapping, error) {
	var rec core.MappingRecord
	var fileID sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.Phone,
		&fileID,
		&rec.Intent,
		&rec.SystemPrompt,
		&rec.Credentials.AuthToken,
		&rec.Credentials.Origin,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = core.MappingUnbound
	if fileID.Valid {
		rec.Kind = core.MappingBound
		rec.DocumentID = core.DocumentID(fileID.String)
	}
	return rec.Mapping(), nil
}

func fileIDOf(rec core.MappingRecord) sql.NullString {
	if rec.Kind != core.MappingBound {
		return sql.NullString{}
	}
	return sql.NullString{String: string(rec.DocumentID), Valid: true}
}

// AddMapping inserts a mapping and returns it with its generated ID.
func (s *Store) AddMapping(ctx context.Context, m core.Mapping) (core.Mapping, error) {
	if m == nil || m.TenantPhone() == "" {
		return nil, storage.ErrInvalidQuery
	}
	rec := core.RecordOf(m)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO phone_document_mapping (phone_number, file_id, intent, system_prompt, auth_token, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		rec.Phone,
		fileIDOf(rec),
		rec.Intent,
		rec.SystemPrompt,
		rec.Credentials.AuthToken,
		rec.Credentials.Origin,
		rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("adding mapping: %w", translate(err))
	}
	return rec.Mapping(), nil
}

// SaveMapping overwrites a mapping by ID.
func (s *Store) SaveMapping(ctx context.Context, m core.Mapping) error {
	if m == nil {
		return storage.ErrInvalidQuery
	}
	rec := core.RecordOf(m)

	query := `
		UPDATE phone_document_mapping
		SET phone_number = $2, file_id = $3, intent = $4, system_prompt = $5, auth_token = $6, origin = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Phone,
		fileIDOf(rec),
		rec.Intent,
		rec.SystemPrompt,
		rec.Credentials.AuthToken,
		rec.Credentials.Origin,
	)
	if err != nil {
		return fmt.Errorf("saving mapping: %w", translate(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// BindMapping binds a placeholder with a conditional update, so only one of
// several concurrent binders can match the still-NULL file_id.
func (s *Store) BindMapping(ctx context.Context, m core.BoundMapping) error {
	rec := core.RecordOf(m)
	query := `
		UPDATE phone_document_mapping
		SET file_id = $3, intent = $4, system_prompt = $5, auth_token = $6, origin = $7
		WHERE id = $1 AND phone_number = $2 AND file_id IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Phone,
		fileIDOf(rec),
		rec.Intent,
		rec.SystemPrompt,
		rec.Credentials.AuthToken,
		rec.Credentials.Origin,
	)
	if err != nil {
		return fmt.Errorf("binding mapping: %w", translate(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var bound bool
	err = s.db.QueryRowContext(ctx,
		`SELECT file_id IS NOT NULL FROM phone_document_mapping WHERE id = $1`, rec.ID,
	).Scan(&bound)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("binding mapping: %w", err)
	}
	if bound {
		return storage.ErrConflict
	}
	return storage.ErrInvalidQuery
}

// MappingsByPhone returns a phone's mappings, oldest first.
func (s *Store) MappingsByPhone(ctx context.Context, phone string) ([]core.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM phone_document_mapping WHERE phone_number = $1 ORDER BY id`
	return s.queryMappings(ctx, query, phone)
}

// ListMappings returns every mapping ordered by phone, then ID.
func (s *Store) ListMappings(ctx context.Context) ([]core.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM phone_document_mapping ORDER BY phone_number, id`
	return s.queryMappings(ctx, query)
}

// DeleteMapping removes a mapping by ID.
func (s *Store) DeleteMapping(ctx context.Context, id core.ID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM phone_document_mapping WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting mapping: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) queryMappings(ctx context.Context, query string, args ...any) ([]core.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var mappings []core.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
