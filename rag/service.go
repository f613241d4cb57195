// Package rag implements retrieval over indexed document chunks: embedding
// text, upserting vectors and answering similarity queries.
package rag

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ragline/ragline/domain"
)

// DefaultTopK is the number of results Retrieve returns.
const DefaultTopK = 5

// Options configures the service.
type Options struct {
	Embedder domain.EmbeddingService
	Vectors  domain.VectorStore
	// TopK overrides DefaultTopK for Retrieve when positive.
	TopK int
}

// Service embeds queries and chunks and delegates storage to the vector
// store.
type Service struct {
	embedder domain.EmbeddingService
	vectors  domain.VectorStore
	topK     int
}

// New builds a retrieval service.
func New(opts Options) (*Service, error) {
	if opts.Embedder == nil {
		return nil, errors.New("embedding service is required")
	}
	if opts.Vectors == nil {
		return nil, errors.New("vector store is required")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{embedder: opts.Embedder, vectors: opts.Vectors, topK: topK}, nil
}

// Retrieve returns the configured number of chunks most similar to the
// query.
func (s *Service) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return s.RetrieveTopK(ctx, query, s.topK)
}

// RetrieveTopK returns at most topK chunks most similar to the query, in
// non-increasing score order.
func (s *Service) RetrieveTopK(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if query == "" {
		return nil, domain.Validationf("query is required")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.vectors.Search(ctx, vec, topK)
}

// IndexChunk embeds and upserts a single chunk.
func (s *Service) IndexChunk(ctx context.Context, chunk *domain.DocumentChunk) error {
	vec, err := s.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return err
	}
	return s.vectors.Upsert(ctx, chunk, vec)
}

// IndexChunks embeds the batch in one provider call and upserts every chunk.
// An empty batch is a no-op.
func (s *Service) IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(chunks) {
		return domain.Internalf("rag: got %d embeddings for %d chunks", len(vecs), len(chunks))
	}
	for i := range chunks {
		if err := s.vectors.Upsert(ctx, &chunks[i], vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocument removes every vector indexed for the document.
func (s *Service) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return s.vectors.DeleteByDocument(ctx, documentID)
}
