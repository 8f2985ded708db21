package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/poiesic/docreply/storage"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Schema creates the tables used by Store. It requires the pgvector
// extension.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_files (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	auth_token  TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rag_chunks (
	file_id   TEXT NOT NULL REFERENCES rag_files(id) ON DELETE CASCADE,
	ordinal   INTEGER NOT NULL,
	chunk     TEXT NOT NULL,
	embedding vector NOT NULL,
	PRIMARY KEY (file_id, ordinal)
);

CREATE TABLE IF NOT EXISTS phone_document_mapping (
	id            BIGSERIAL PRIMARY KEY,
	phone_number  TEXT NOT NULL,
	file_id       TEXT,
	intent        TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	auth_token    TEXT NOT NULL DEFAULT '',
	origin        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_mapping_phone ON phone_document_mapping(phone_number);
CREATE INDEX IF NOT EXISTS idx_mapping_file ON phone_document_mapping(file_id);

CREATE TABLE IF NOT EXISTS messages (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	business    TEXT NOT NULL DEFAULT '',
	counterpart TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	event_id    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(session_id, business, counterpart, id);

CREATE TABLE IF NOT EXISTS whatsapp_messages (
	message_id   TEXT PRIMARY KEY,
	from_number  TEXT NOT NULL,
	to_number    TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	event_type   TEXT NOT NULL DEFAULT '',
	sender_name  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	received_at  TIMESTAMPTZ NOT NULL,
	responded_at TIMESTAMPTZ
);
`

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements storage.Store on PostgreSQL with pgvector.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

// InitSchema creates missing tables and indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to rollback transaction", "err", rbErr, "original_err", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// translate maps driver errors onto storage sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pqErr.Constraint)
	}
	return err
}
