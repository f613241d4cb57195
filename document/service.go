// Package document orchestrates document persistence and chunking.
package document

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ragline/ragline/domain"
)

// DefaultChunkSize is the paragraph chunker budget used when none is
// configured.
const DefaultChunkSize = 1000

// Options configures the service.
type Options struct {
	Store domain.DocumentStore
	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int
}

// Service creates, reads and deletes documents and their chunks. Vector
// cleanup is the caller's responsibility.
type Service struct {
	store     domain.DocumentStore
	chunkSize int
}

// New builds a document service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("document store is required")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{store: opts.Store, chunkSize: chunkSize}, nil
}

// Ingest creates a document, persists it, chunks the content and persists
// the chunks. An empty contentType keeps the "text/plain" default. Not
// atomic: on partial failure the document may exist without chunks.
func (s *Service) Ingest(ctx context.Context, name, content, contentType string) (*domain.Document, []domain.DocumentChunk, error) {
	if name == "" {
		return nil, nil, domain.Validationf("document name is required")
	}
	doc := domain.NewDocument(name)
	if contentType != "" {
		doc.ContentType = contentType
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, nil, err
	}
	chunks := domain.ChunkContent(doc.ID, content, s.chunkSize)
	if len(chunks) > 0 {
		if err := s.store.SaveChunks(ctx, chunks); err != nil {
			return nil, nil, err
		}
	}
	return doc, chunks, nil
}

// Get returns the document or (nil, nil) when absent.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// GetWithChunks returns the document with its chunks, or (nil, nil, nil)
// when the document is absent.
func (s *Service) GetWithChunks(ctx context.Context, id uuid.UUID) (*domain.Document, []domain.DocumentChunk, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil || doc == nil {
		return nil, nil, err
	}
	chunks, err := s.store.GetChunks(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

// Delete removes the document and its chunks from the store. Vector store
// cleanup happens separately through an index job.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteDocument(ctx, id)
}
