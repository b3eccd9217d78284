package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrEmptyKey    = errors.New("key cannot be empty")
	ErrNilValue    = errors.New("value cannot be nil")
	ErrClosed      = errors.New("store is closed")
)

// Store defines the key-value operations used to persist network state
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
	// Keys returns every key starting with prefix in ascending order
	Keys(prefix string) ([]string, error)
	Close() error
}

// MemoryStore is a thread-safe in-memory Store
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Put stores a copy of data under key
func (s *MemoryStore) Put(key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if data == nil {
		return ErrNilValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	// Copy to prevent external modifications
	valueCopy := make([]byte, len(data))
	copy(valueCopy, data)
	s.data[key] = valueCopy
	return nil
}

// Get returns a copy of the data stored under key
func (s *MemoryStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	item, exists := s.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	valueCopy := make([]byte, len(item))
	copy(valueCopy, item)
	return valueCopy, nil
}

// Delete removes key
func (s *MemoryStore) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.data[key]; !exists {
		return ErrKeyNotFound
	}

	delete(s.data, key)
	return nil
}

// Keys returns all keys with the given prefix, sorted
func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store closed; later operations fail with ErrClosed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
