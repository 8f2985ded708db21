package badger

import (
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/storage"
)

// Store implements storage.Store on BadgerDB.
type Store struct {
	backend    *Backend
	mappingSeq *badger.Sequence
	turnSeq    *badger.Sequence
	logger     *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) a store in the directory at path.
func Open(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// NewStore creates a Store on an open backend. Closing the store closes
// the backend.
func NewStore(backend *Backend) (*Store, error) {
	mappingSeq, err := backend.GetSequence(mappingIDSeq)
	if err != nil {
		return nil, err
	}
	turnSeq, err := backend.GetSequence(turnIDSeq)
	if err != nil {
		mappingSeq.Release()
		return nil, err
	}

	return &Store{
		backend:    backend,
		mappingSeq: mappingSeq,
		turnSeq:    turnSeq,
		logger:     slog.Default().With("component", "badger-store"),
	}, nil
}

// Close releases the ID sequences and closes the backend.
func (s *Store) Close() error {
	return errors.Join(
		s.mappingSeq.Release(),
		s.turnSeq.Release(),
		s.backend.Close(),
	)
}
