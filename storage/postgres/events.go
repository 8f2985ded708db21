package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// AddEvent relies on the message_id primary key: ON CONFLICT DO NOTHING
// inserts no row for an ID that is already recorded.
func (s *Store) AddEvent(ctx context.Context, event *core.InboundEvent) error {
	if event == nil || event.ID == "" {
		return storage.ErrInvalidQuery
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = core.EventReceived
	}

	query := `
		INSERT INTO whatsapp_messages (message_id, from_number, to_number, content, event_type, sender_name, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.From,
		event.To,
		event.Text,
		event.Kind,
		event.SenderName,
		event.Status,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", translate(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// GetEvent retrieves an event by its external ID.
func (s *Store) GetEvent(ctx context.Context, id string) (*core.InboundEvent, error) {
	query := `
		SELECT message_id, from_number, to_number, content, event_type, sender_name, status, received_at, responded_at
		FROM whatsapp_messages
		WHERE message_id = $1
	`
	event := &core.InboundEvent{}
	var respondedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.From,
		&event.To,
		&event.Text,
		&event.Kind,
		&event.SenderName,
		&event.Status,
		&event.ReceivedAt,
		&respondedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if respondedAt.Valid {
		event.RespondedAt = respondedAt.Time
	}
	return event, nil
}

// MarkEvent updates an event's status, stamping responded_at for
// EventResponded.
func (s *Store) MarkEvent(ctx context.Context, id string, status core.EventStatus, at time.Time) error {
	var respondedAt sql.NullTime
	if status == core.EventResponded {
		respondedAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}

	query := `
		UPDATE whatsapp_messages
		SET status = $2, responded_at = COALESCE($3, responded_at)
		WHERE message_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, status, respondedAt)
	if err != nil {
		return fmt.Errorf("marking event: %w", err)
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
