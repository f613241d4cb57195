// Package inmem provides an in-process domain.DocumentStore. It backs tests
// and deployments that do not configure a database.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ragline/ragline/domain"
)

// Store keeps documents and chunks in maps guarded by one mutex. Safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	docs   map[uuid.UUID]domain.Document
	chunks map[uuid.UUID][]domain.DocumentChunk
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:   make(map[uuid.UUID]domain.Document),
		chunks: make(map[uuid.UUID][]domain.DocumentChunk),
	}
}

// SaveDocument inserts or replaces the document.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

// GetDocument returns the document or (nil, nil) when absent.
func (s *Store) GetDocument(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// DeleteDocument removes the document and its chunks. Deleting a missing
// document reports KindNotFound.
func (s *Store) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return domain.NotFoundf("document %s not found", id)
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

// SaveChunks replaces the stored chunks of each document represented in the
// batch. An empty batch is a no-op.
func (s *Store) SaveChunks(_ context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, docID := range documentIDs(chunks) {
		delete(s.chunks, docID)
	}
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

// GetChunks returns the document's chunks ordered by chunk index. A document
// with no chunks yields an empty slice.
func (s *Store) GetChunks(_ context.Context, documentID uuid.UUID) ([]domain.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.chunks[documentID]
	out := make([]domain.DocumentChunk, len(stored))
	copy(out, stored)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func documentIDs(chunks []domain.DocumentChunk) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, 1)
	ids := make([]uuid.UUID, 0, 1)
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			ids = append(ids, c.DocumentID)
		}
	}
	return ids
}

var _ domain.DocumentStore = (*Store)(nil)
