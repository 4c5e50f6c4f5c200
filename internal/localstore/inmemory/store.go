package inmemory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/pocketbook/internal/localstore"
)

// Store is an in-memory implementation of localstore.KV.
// It is safe for concurrent use. Data is lost when the process exits, so it
// serves tests and throwaway sessions.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool

	// FailWrites makes every Write return an error, for exercising
	// local I/O failure paths.
	FailWrites bool
}

// NewStore creates a new, empty in-memory store.
func NewStore() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Read implements localstore.KV.
func (s *Store) Read(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("read %q: store is closed", key)
	}

	value, exists := s.values[key]
	if !exists {
		return nil, localstore.ErrNotFound
	}

	// Return a copy to avoid external modifications
	return append([]byte(nil), value...), nil
}

// Write implements localstore.KV.
func (s *Store) Write(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("write %q: store is closed", key)
	}
	if s.FailWrites {
		return fmt.Errorf("write %q: simulated failure", key)
	}

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close implements localstore.KV.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure Store implements localstore.KV.
var _ localstore.KV = (*Store)(nil)
