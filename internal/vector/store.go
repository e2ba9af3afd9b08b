// File path: internal/vector/store.go
package vector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/repolens/repolens/internal/chunker"
)

// StoredChunk is a chunk plus its embedding vector, as persisted in a
// collection. Its lifecycle is tied to the collection: created on batch
// insertion, destroyed when the collection is dropped.
type StoredChunk struct {
	Chunk     chunker.Chunk `json:"chunk"`
	Vector    []float32     `json:"vector"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is the persistence contract for stored chunks, scoped by collection
// name. Implementations must allow concurrent readers while a batch insert
// is in flight; readers may observe partial collections mid-ingest.
type Store interface {
	EnsureCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, chunks []StoredChunk) error
	All(ctx context.Context, collection string) ([]StoredChunk, error)
	Count(ctx context.Context, collection string) (int, error)
	Drop(ctx context.Context, collection string) error
	Close() error
}

// MemoryStore keeps collections in a mutex-guarded map. It is the default
// backend; one repository's chunk set comfortably fits in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]StoredChunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]StoredChunk)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = nil
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.collections[collection]
	byID := make(map[string]int, len(existing))
	for i, stored := range existing {
		byID[stored.Chunk.ID] = i
	}
	for _, chunk := range chunks {
		if idx, ok := byID[chunk.Chunk.ID]; ok {
			existing[idx] = chunk
			continue
		}
		byID[chunk.Chunk.ID] = len(existing)
		existing = append(existing, chunk)
	}
	s.collections[collection] = existing
	return nil
}

func (s *MemoryStore) All(ctx context.Context, collection string) ([]StoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	out := make([]StoredChunk, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s not found", collection)
	}
	return len(stored), nil
}

func (s *MemoryStore) Drop(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
