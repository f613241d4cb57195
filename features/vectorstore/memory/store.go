// Package memory provides an in-process domain.VectorStore. It exists for
// tests and for running without a vector database; similarity is exact
// cosine over every stored entry.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ragline/ragline/domain"
)

type entry struct {
	chunk     domain.DocumentChunk
	embedding domain.Embedding
}

// Store is a mutex-guarded slice of chunk embeddings. Safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	entries []entry
}

// New returns an empty store.
func New() *Store { return &Store{} }

// Upsert stores the chunk embedding. Any existing entry with the same
// chunk id is removed first, so a re-upserted chunk takes the newest
// insertion position.
func (s *Store) Upsert(_ context.Context, chunk *domain.DocumentChunk, embedding domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.chunk.ID != chunk.ID {
			kept = append(kept, e)
		}
	}
	s.entries = append(kept, entry{
		chunk:     *chunk,
		embedding: append(domain.Embedding(nil), embedding...),
	})
	return nil
}

// Search scores every entry against the query and returns at most topK
// results in non-increasing score order.
func (s *Store) Search(_ context.Context, query domain.Embedding, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	results := make([]domain.SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, domain.SearchResult{
			Chunk: e.chunk,
			Score: query.CosineSimilarity(e.embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument removes every entry belonging to the document. Removing
// from an empty or non-matching store is a no-op.
func (s *Store) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.chunk.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Len reports the number of stored embeddings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ domain.VectorStore = (*Store)(nil)
