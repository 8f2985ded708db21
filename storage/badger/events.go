package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// AddEvent relies on badger's conflict detection: the existence check reads
// the key inside the same transaction that writes it, so a concurrent
// writer of the same ID makes the commit fail with ErrConflict.
func (s *Store) AddEvent(ctx context.Context, event *core.InboundEvent) error {
	if event == nil || event.ID == "" {
		return storage.ErrInvalidQuery
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEventKey(event.ID)
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if event.ReceivedAt.IsZero() {
			event.ReceivedAt = time.Now().UTC()
		}
		if event.Status == "" {
			event.Status = core.EventReceived
		}
		if err := writeValue(tx, key, storage.InboundEventMUS, *event); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrDuplicateKey
	}
	return err
}

// GetEvent retrieves an event by its external ID.
func (s *Store) GetEvent(ctx context.Context, id string) (*core.InboundEvent, error) {
	var result *core.InboundEvent
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readValue(tx, makeEventKey(id), storage.InboundEventMUS)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// MarkEvent updates an event's status. RespondedAt is set only for
// EventResponded.
func (s *Store) MarkEvent(ctx context.Context, id string, status core.EventStatus, at time.Time) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEventKey(id)
		event, err := readValue(tx, key, storage.InboundEventMUS)
		if err != nil {
			return err
		}
		if event == nil {
			return storage.ErrNotFound
		}
		event.Status = status
		if status == core.EventResponded {
			event.RespondedAt = at.UTC()
		}
		if err := writeValue(tx, key, storage.InboundEventMUS, *event); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
