package cache

import (
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is an on-disk Store backed by the embedded BadgerDB key-value
// database, for caches that should survive the process (e.g. tokenized
// corpora reused across training runs).
type BadgerStore struct {
	db *badger.DB
}

// Verify it implements the interface.
var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a store at the given directory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Get retrieves the value for key, or (nil, nil) when absent.
func (s *BadgerStore) Get(key string) ([]byte, error) {
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result = append([]byte(nil), val...)
			return nil
		})
	})
	return result, err
}

// Set stores a value under key; a positive ttl expires the entry.
func (s *BadgerStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a key.
func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
