package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// BadgerStore persists network state in an embedded badger database
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) a badger database at path.
// An empty path opens an in-memory database.
func NewBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %q: %w", path, err)
	}

	logger.Info("Opened badger store", zap.String("path", path), zap.Bool("in_memory", path == ""))
	return &BadgerStore{db: db, logger: logger}, nil
}

// Put stores data under key
func (s *BadgerStore) Put(key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if data == nil {
		return ErrNilValue
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	return s.translate(err)
}

// Get returns the data stored under key
func (s *BadgerStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return value, nil
}

// Delete removes key
func (s *BadgerStore) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	return s.translate(err)
}

// Keys returns all keys with the given prefix in ascending order
func (s *BadgerStore) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return keys, nil
}

// Close flushes and closes the database
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close badger store", zap.Error(err))
		return err
	}
	return nil
}

func (s *BadgerStore) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	}
	return err
}
