package badger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// AddMapping stores a new mapping with a fresh sequential ID.
func (s *Store) AddMapping(ctx context.Context, m core.Mapping) (core.Mapping, error) {
	if m == nil || m.TenantPhone() == "" {
		return nil, storage.ErrInvalidQuery
	}

	rec := core.RecordOf(m)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(s.mappingSeq)
		if err != nil {
			return err
		}
		rec.ID = id
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}

		if err := writeValue(tx, makeMappingKey(rec.ID), storage.MappingRecordMUS, rec); err != nil {
			return err
		}
		if err := tx.Set(makeMappingPhoneKey(rec.Phone, rec.ID), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return rec.Mapping(), nil
}

// BindMapping binds a placeholder inside one write transaction. Badger's
// optimistic conflict detection rejects the commit if a concurrent
// transaction rewrote the placeholder after it was read here.
func (s *Store) BindMapping(ctx context.Context, m core.BoundMapping) error {
	rec := core.RecordOf(m)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeMappingKey(rec.ID)
		old, err := readValue(tx, key, storage.MappingRecordMUS)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if old.Kind != core.MappingUnbound {
			return storage.ErrConflict
		}
		if old.Phone != rec.Phone {
			return storage.ErrInvalidQuery
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = old.CreatedAt
		}
		if err := writeValue(tx, key, storage.MappingRecordMUS, rec); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrConflict
	}
	return err
}

// SaveMapping replaces an existing mapping, moving its phone index entry if
// the phone changed.
func (s *Store) SaveMapping(ctx context.Context, m core.Mapping) error {
	if m == nil {
		return storage.ErrInvalidQuery
	}

	rec := core.RecordOf(m)
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeMappingKey(rec.ID)
		old, err := readValue(tx, key, storage.MappingRecordMUS)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = old.CreatedAt
		}

		if old.Phone != rec.Phone {
			if err := tx.Delete(makeMappingPhoneKey(old.Phone, old.ID)); err != nil {
				return err
			}
			if err := tx.Set(makeMappingPhoneKey(rec.Phone, rec.ID), nil); err != nil {
				return err
			}
		}
		if err := writeValue(tx, key, storage.MappingRecordMUS, rec); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// MappingsByPhone walks the phone index, which is ordered by mapping ID.
func (s *Store) MappingsByPhone(ctx context.Context, phone string) ([]core.Mapping, error) {
	var mappings []core.Mapping
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeMappingPhonePrefix(phone)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id := idSuffix(iter.Item().Key())
			rec, err := readValue(tx, makeMappingKey(id), storage.MappingRecordMUS)
			if err != nil {
				return err
			}
			if rec == nil {
				s.logger.Warn("phone index points at missing mapping", "phone", phone, "mapping_id", id)
				continue
			}
			mappings = append(mappings, rec.Mapping())
		}
		return nil
	}, false)
	return mappings, err
}

// ListMappings returns every mapping ordered by phone, then ID.
func (s *Store) ListMappings(ctx context.Context) ([]core.Mapping, error) {
	var records []*core.MappingRecord
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		records, err = scanMappings(tx)
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(records, func(a, b *core.MappingRecord) int {
		if c := cmp.Compare(a.Phone, b.Phone); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	mappings := make([]core.Mapping, len(records))
	for i, rec := range records {
		mappings[i] = rec.Mapping()
	}
	return mappings, nil
}

// DeleteMapping removes a mapping and its phone index entry.
func (s *Store) DeleteMapping(ctx context.Context, id core.ID) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeMappingKey(id)
		rec, err := readValue(tx, key, storage.MappingRecordMUS)
		if err != nil {
			return err
		}
		if rec == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeMappingPhoneKey(rec.Phone, rec.ID)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// scanMappings reads every mapping record in ID order.
func scanMappings(tx *badger.Txn) ([]*core.MappingRecord, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(mappingPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var records []*core.MappingRecord
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var rec *core.MappingRecord
		err := iter.Item().Value(func(val []byte) error {
			var err error
			rec, err = storage.Unmarshal(storage.MappingRecordMUS, val)
			return err
		})
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
