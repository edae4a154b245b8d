// Package vectordb provides vector index adapters.
// Clean Architecture: Adapters implementing ports.VectorIndex. All of them rank by
// cosine distance.
package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.VectorIndex = (*InMemoryStore)(nil)

// InMemoryStore keeps the collection in process memory. Nothing survives a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	dims    int
	entries []storedEntry
	byID    map[string]int // id -> slice index
}

// NewInMemoryStore creates an empty in-memory index. dims <= 0 accepts any
// dimension as long as each batch is consistent.
func NewInMemoryStore(dims int) *InMemoryStore {
	return &InMemoryStore{
		dims: dims,
		byID: make(map[string]int),
	}
}

// Reset drops every entry.
func (s *InMemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.byID = make(map[string]int)
	return nil
}

// Add stores entries as chunk_<position>, replacing entries with the same ID.
func (s *InMemoryStore) Add(ctx context.Context, entries []entities.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := checkDimensions(entries, s.dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for pos, e := range entries {
		stored := storedEntry{id: entities.EntryID(pos), position: pos, entry: e}
		if i, ok := s.byID[stored.id]; ok {
			s.entries[i] = stored
			continue
		}
		s.byID[stored.id] = len(s.entries)
		s.entries = append(s.entries, stored)
	}
	return nil
}

// Search ranks every entry by cosine distance to query.
func (s *InMemoryStore) Search(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return rankByDistance(query, s.entries, k), nil
}

// Count returns the number of stored entries.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
