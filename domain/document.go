// Package domain holds the entities, invariants and ports of the RAG chat
// backend: documents and their chunks, embeddings, conversations, the
// paragraph chunker and the capability contracts implemented under features/.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is an ingested piece of source material. Immutable after
// creation except for UpdatedAt.
type Document struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	ContentType string          `json:"content_type"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewDocument builds a Document with a fresh ID and the default
// "text/plain" content type.
func NewDocument(name string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:          uuid.New(),
		Name:        name,
		ContentType: "text/plain",
		Metadata:    json.RawMessage("{}"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ChunkMetadata carries optional provenance for a chunk.
type ChunkMetadata struct {
	Page    *uint  `json:"page,omitempty"`
	Section string `json:"section,omitempty"`
}

// DocumentChunk is a contiguous substring of a document carved at paragraph
// boundaries. ChunkIndex is 0-based and contiguous within a document.
type DocumentChunk struct {
	ID         uuid.UUID     `json:"id"`
	DocumentID uuid.UUID     `json:"document_id"`
	Content    string        `json:"content"`
	ChunkIndex int           `json:"chunk_index"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// NewChunk builds a chunk for the given document.
func NewChunk(documentID uuid.UUID, content string, index int) DocumentChunk {
	return DocumentChunk{
		ID:         uuid.New(),
		DocumentID: documentID,
		Content:    content,
		ChunkIndex: index,
	}
}

// SearchResult pairs a chunk with its cosine similarity to a query.
// Scores are in [-1, 1]; result slices are ordered by descending score.
type SearchResult struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float32       `json:"score"`
}
