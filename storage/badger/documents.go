package badger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// CreateDocument stores a new pending document.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) error {
	if doc == nil || doc.ID == "" {
		return storage.ErrInvalidQuery
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		existing, err := readValue(tx, key, storage.DocumentMUS)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now().UTC()
		}
		doc.Status = core.DocumentPending
		doc.ChunkCount = 0

		if err := writeValue(tx, key, storage.DocumentMUS, *doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	var result *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readValue(tx, makeDocumentKey(id), storage.DocumentMUS)
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

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		docs, err = scanDocuments(tx)
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(docs, func(a, b *core.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// DeleteDocument removes a document, its bound mappings and its chunks.
// The document record goes first so retrieval stops seeing the chunks
// before they are removed.
func (s *Store) DeleteDocument(ctx context.Context, id core.DocumentID) error {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readValue(tx, key, storage.DocumentMUS)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(key); err != nil {
			return err
		}

		records, err := scanMappings(tx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Kind != core.MappingBound || rec.DocumentID != id {
				continue
			}
			if err := tx.Delete(makeMappingKey(rec.ID)); err != nil {
				return err
			}
			if err := tx.Delete(makeMappingPhoneKey(rec.Phone, rec.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	return s.deleteChunks(id)
}

func (s *Store) deleteChunks(id core.DocumentID) error {
	keys, err := s.backend.keysWithPrefix(makeChunkPrefix(id))
	if err != nil {
		return err
	}
	return s.backend.deleteKeys(keys)
}

func scanDocuments(tx *badger.Txn) ([]*core.Document, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(documentPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var docs []*core.Document
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var doc *core.Document
		err := iter.Item().Value(func(val []byte) error {
			var err error
			doc, err = storage.Unmarshal(storage.DocumentMUS, val)
			return err
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
