// Package qdrant provides a domain.VectorStore backed by a Qdrant collection
// via github.com/qdrant/go-client. Points are keyed by a numeric id derived
// from the chunk UUID and carry the chunk payload so searches need no second
// lookup.
package qdrant

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	sdk "github.com/qdrant/go-client/qdrant"

	"github.com/ragline/ragline/domain"
)

type (
	// CollectionsAPI is the subset of the Qdrant client used for collection
	// bootstrap. Satisfied by *sdk.Client.
	CollectionsAPI interface {
		CollectionExists(ctx context.Context, collectionName string) (bool, error)
		CreateCollection(ctx context.Context, req *sdk.CreateCollection) error
	}

	// PointsAPI is the subset of the Qdrant client used for point operations.
	// Satisfied by *sdk.Client.
	PointsAPI interface {
		Upsert(ctx context.Context, req *sdk.UpsertPoints) (*sdk.UpdateResult, error)
		Query(ctx context.Context, req *sdk.QueryPoints) ([]*sdk.ScoredPoint, error)
		Delete(ctx context.Context, req *sdk.DeletePoints) (*sdk.UpdateResult, error)
	}

	// Options configures the store.
	Options struct {
		// Collection is the Qdrant collection name.
		Collection string

		// Dimension is the vector size the collection is created with.
		Dimension int
	}

	// Store implements domain.VectorStore against one Qdrant collection.
	Store struct {
		collections CollectionsAPI
		points      PointsAPI
		collection  string
		dimension   int
	}
)

const (
	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadContent    = "content"
	payloadChunkIndex = "chunk_index"
)

// New builds a store and ensures the collection exists, creating it with
// cosine distance when missing. A concurrent create by another process is
// tolerated.
func New(ctx context.Context, collections CollectionsAPI, points PointsAPI, opts Options) (*Store, error) {
	if collections == nil || points == nil {
		return nil, errors.New("qdrant client is required")
	}
	if opts.Collection == "" {
		return nil, errors.New("collection name is required")
	}
	if opts.Dimension <= 0 {
		return nil, errors.New("vector dimension must be positive")
	}
	s := &Store{
		collections: collections,
		points:      points,
		collection:  opts.Collection,
		dimension:   opts.Dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromClient is a convenience constructor for the real Qdrant client.
func NewFromClient(ctx context.Context, client *sdk.Client, opts Options) (*Store, error) {
	return New(ctx, client, client, opts)
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.collections.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.collections.CreateCollection(ctx, &sdk.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: sdk.NewVectorsConfig(&sdk.VectorParams{
			Size:     uint64(s.dimension),
			Distance: sdk.Distance_Cosine,
		}),
	})
	if err != nil {
		// Another process may have created the collection between the exists
		// check and the create call.
		exists, checkErr := s.collections.CollectionExists(ctx, s.collection)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create collection %q: %w", s.collection, err)
	}
	return nil
}

// Dimension reports the vector size the collection was created with.
func (s *Store) Dimension() int { return s.dimension }

// Upsert writes the chunk embedding as a single point keyed by the chunk id.
func (s *Store) Upsert(ctx context.Context, chunk *domain.DocumentChunk, embedding domain.Embedding) error {
	if len(embedding) != s.dimension {
		return domain.Internalf("qdrant upsert: embedding dimension %d does not match collection dimension %d", len(embedding), s.dimension)
	}
	_, err := s.points.Upsert(ctx, &sdk.UpsertPoints{
		CollectionName: s.collection,
		Points: []*sdk.PointStruct{{
			Id:      sdk.NewIDNum(pointID(chunk.ID)),
			Vectors: sdk.NewVectors(embedding...),
			Payload: sdk.NewValueMap(map[string]any{
				payloadChunkID:    chunk.ID.String(),
				payloadDocumentID: chunk.DocumentID.String(),
				payloadContent:    chunk.Content,
				payloadChunkIndex: int64(chunk.ChunkIndex),
			}),
		}},
	})
	if err != nil {
		return domain.WrapExternal("qdrant upsert", err)
	}
	return nil
}

// Search runs a cosine top-k query and reconstructs chunks from point
// payloads.
func (s *Store) Search(ctx context.Context, query domain.Embedding, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	limit := uint64(topK)
	points, err := s.points.Query(ctx, &sdk.QueryPoints{
		CollectionName: s.collection,
		Query:          sdk.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    sdk.NewWithPayload(true),
	})
	if err != nil {
		return nil, domain.WrapExternal("qdrant query", err)
	}
	results := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		chunk, err := chunkFromPayload(p.Payload)
		if err != nil {
			// Stray or hand-written points without a well-formed payload are
			// not answerable results; skip them.
			continue
		}
		results = append(results, domain.SearchResult{Chunk: *chunk, Score: p.Score})
	}
	return results, nil
}

// DeleteByDocument removes every point whose payload document_id matches.
func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.points.Delete(ctx, &sdk.DeletePoints{
		CollectionName: s.collection,
		Points: sdk.NewPointsSelectorFilter(&sdk.Filter{
			Must: []*sdk.Condition{
				sdk.NewMatch(payloadDocumentID, documentID.String()),
			},
		}),
	})
	if err != nil {
		return domain.WrapExternal("qdrant delete", err)
	}
	return nil
}

// pointID derives a numeric point id from the first eight bytes of the chunk
// UUID, little endian.
func pointID(chunkID uuid.UUID) uint64 {
	return binary.LittleEndian.Uint64(chunkID[:8])
}

func chunkFromPayload(payload map[string]*sdk.Value) (*domain.DocumentChunk, error) {
	chunkID, err := uuid.Parse(payload[payloadChunkID].GetStringValue())
	if err != nil {
		return nil, domain.Internalf("qdrant payload: invalid chunk_id: %v", err)
	}
	documentID, err := uuid.Parse(payload[payloadDocumentID].GetStringValue())
	if err != nil {
		return nil, domain.Internalf("qdrant payload: invalid document_id: %v", err)
	}
	return &domain.DocumentChunk{
		ID:         chunkID,
		DocumentID: documentID,
		Content:    payload[payloadContent].GetStringValue(),
		ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
	}, nil
}

var _ domain.VectorStore = (*Store)(nil)
