package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// AppendTurn stores a conversation turn under its conversation key.
func (s *Store) AppendTurn(ctx context.Context, turn *core.ConversationTurn) error {
	if err := core.ValidateTurn(turn); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(s.turnSeq)
		if err != nil {
			return err
		}
		turn.ID = id
		if turn.Timestamp.IsZero() {
			turn.Timestamp = time.Now().UTC()
		}
		if err := writeValue(tx, makeTurnKey(turn.Key, turn.ID), storage.ConversationTurnMUS, *turn); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RecentTurns iterates the conversation backwards from its newest turn and
// returns the window in chronological order.
func (s *Store) RecentTurns(ctx context.Context, key core.ConversationKey, limit int) ([]core.ConversationTurn, error) {
	if limit <= 0 {
		return []core.ConversationTurn{}, nil
	}

	turns := make([]core.ConversationTurn, 0, limit)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeTurnPrefix(key)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the largest possible ID under the prefix.
		seek := append(slices.Clone(prefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for iter.Seek(seek); iter.Valid() && len(turns) < limit; iter.Next() {
			var turn *core.ConversationTurn
			err := iter.Item().Value(func(val []byte) error {
				var err error
				turn, err = storage.Unmarshal(storage.ConversationTurnMUS, val)
				return err
			})
			if err != nil {
				return err
			}
			turns = append(turns, *turn)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.Reverse(turns)
	return turns, nil
}
