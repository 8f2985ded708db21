package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/docreply/core"
)

// AppendTurn inserts a conversation turn.
func (s *Store) AppendTurn(ctx context.Context, turn *core.ConversationTurn) error {
	if err := core.ValidateTurn(turn); err != nil {
		return err
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (session_id, business, counterpart, role, content, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		turn.Key.SessionID,
		turn.Key.Business,
		turn.Key.Counterpart,
		turn.Role,
		turn.Content,
		turn.EventID,
		turn.Timestamp,
	).Scan(&turn.ID)
	if err != nil {
		return fmt.Errorf("appending turn: %w", translate(err))
	}
	return nil
}

// RecentTurns returns up to limit of the newest turns, oldest first.
func (s *Store) RecentTurns(ctx context.Context, key core.ConversationKey, limit int) ([]core.ConversationTurn, error) {
	if limit <= 0 {
		return []core.ConversationTurn{}, nil
	}

	query := `
		SELECT id, role, content, event_id, created_at
		FROM messages
		WHERE session_id = $1 AND business = $2 AND counterpart = $3
		ORDER BY id DESC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, key.SessionID, key.Business, key.Counterpart, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := make([]core.ConversationTurn, 0, limit)
	for rows.Next() {
		turn := core.ConversationTurn{Key: key}
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &turn.EventID, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(turns)
	return turns, nil
}
