package domain

import (
	"context"

	"github.com/google/uuid"
)

// DocumentStore persists documents and their chunks. Get operations return
// (nil, nil) when the entity does not exist; delete of a missing document
// reports KindNotFound.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	SaveChunks(ctx context.Context, chunks []DocumentChunk) error
	GetChunks(ctx context.Context, documentID uuid.UUID) ([]DocumentChunk, error)
}

// VectorStore indexes chunk embeddings and answers cosine top-k queries.
// Upsert replaces any entry with the same chunk id. Search returns at most
// topK results in non-increasing score order. DeleteByDocument is a no-op
// when nothing matches.
type VectorStore interface {
	Upsert(ctx context.Context, chunk *DocumentChunk, embedding Embedding) error
	Search(ctx context.Context, query Embedding, topK int) ([]SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// EmbeddingService turns text into embeddings of a fixed dimension.
// EmbedBatch preserves input order and cardinality; an empty batch returns
// an empty slice without calling the provider.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) (Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
	Dimension() int
}

// LlmService is the minimal completion contract for callers that do not
// need tool use. The chat agent consumes the richer model.Client instead.
type LlmService interface {
	CompleteText(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)
}
