package cache

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// ErrNotFound is returned when a key has no entry.
var ErrNotFound = errors.New("cache entry not found")

// Store wraps Badger for hash cache persistence.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates a store in dir.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for path under algorithm.
func (s *Store) Get(algorithm types.Algorithm, path string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(algorithm, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a single entry.
func (s *Store) Put(algorithm types.Algorithm, path string, entry *Entry) error {
	value, err := entry.Encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(algorithm, path), value)
	})
}

// PutBatch stores many entries with a write batch.
func (s *Store) PutBatch(algorithm types.Algorithm, entries map[string]*Entry) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for path, entry := range entries {
		value, err := entry.Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(MakeKey(algorithm, path), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Delete removes one entry.
func (s *Store) Delete(algorithm types.Algorithm, path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(MakeKey(algorithm, path))
	})
}

// Count returns the number of entries per algorithm.
func (s *Store) Count() (map[types.Algorithm]int, error) {
	counts := make(map[types.Algorithm]int)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			for i, b := range key {
				if b == KeySeparator {
					counts[types.Algorithm(key[:i])]++
					break
				}
			}
		}
		return nil
	})
	return counts, err
}

// Size returns the on-disk LSM and value log sizes in bytes.
func (s *Store) Size() (lsm, vlog int64) {
	return s.db.Size()
}

// Clear drops every entry.
func (s *Store) Clear() error {
	return s.db.DropAll()
}
