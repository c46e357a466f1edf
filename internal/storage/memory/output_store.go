// Package memory keeps output images in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cardshot/internal/item"
)

// OutputStore stores images in a map and counts writes per item.
type OutputStore struct {
	mu     sync.RWMutex
	data   map[item.ID][]byte
	writes map[item.ID]int
}

// NewOutputStore creates an empty store, optionally pre-seeded with ids
// holding placeholder content.
func NewOutputStore(seed ...item.ID) *OutputStore {
	s := &OutputStore{
		data:   make(map[item.ID][]byte),
		writes: make(map[item.ID]int),
	}
	for _, id := range seed {
		s.data[id] = []byte("seed")
	}
	return s
}

// List returns every stored ID.
func (s *OutputStore) List(_ context.Context) (item.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(item.Set, len(s.data))
	for id := range s.data {
		out.Add(id)
	}
	return out, nil
}

// Put persists a copy of data and returns a pseudo URI.
func (s *OutputStore) Put(_ context.Context, id item.ID, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]byte(nil), data...)
	s.writes[id]++
	return fmt.Sprintf("memory://%s", id), nil
}

// Delete drops id.
func (s *OutputStore) Delete(_ context.Context, id item.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Get returns the stored bytes for id.
func (s *OutputStore) Get(id item.ID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	return b, ok
}

// Writes reports how many times Put was called for id.
func (s *OutputStore) Writes(id item.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[id]
}
