// Package mongo provides a domain.DocumentStore backed by MongoDB. Documents
// and chunks live in two collections keyed by their UUIDs as strings.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ragline/ragline/domain"
)

const (
	defaultDocuments = "documents"
	defaultChunks    = "document_chunks"
	defaultTimeout   = 5 * time.Second
)

// Options configures the store.
type Options struct {
	Client *mongodriver.Client
	// Database is the database name. Required.
	Database string
	// Documents and Chunks name the two collections. Defaults:
	// "documents" and "document_chunks".
	Documents string
	Chunks    string
	// Timeout bounds every operation. Defaults to 5s.
	Timeout time.Duration
}

// Store implements domain.DocumentStore on two Mongo collections.
type Store struct {
	docs    collection
	chunks  collection
	timeout time.Duration
}

// New builds a store from the provided Mongo client and ensures the chunk
// index exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	docsName := opts.Documents
	if docsName == "" {
		docsName = defaultDocuments
	}
	chunksName := opts.Chunks
	if chunksName == "" {
		chunksName = defaultChunks
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		docs:    mongoCollection{coll: db.Collection(docsName)},
		chunks:  mongoCollection{coll: db.Collection(chunksName)},
		timeout: timeout,
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(ctx, s.chunks); err != nil {
		return nil, err
	}
	return s, nil
}

func newStoreWithCollections(docs, chunks collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{docs: docs, chunks: chunks, timeout: timeout}
}

// SaveDocument upserts the document by id.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec := toDocumentRecord(doc)
	_, err := s.docs.UpdateOne(ctx,
		bson.M{"_id": rec.ID},
		bson.M{"$set": rec},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.WrapInternal("save document", err)
	}
	return nil
}

// GetDocument returns the document or (nil, nil) when absent.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec documentRecord
	if err := s.docs.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&rec); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, domain.WrapInternal("get document", err)
	}
	return fromDocumentRecord(&rec)
}

// DeleteDocument removes the document and its chunks. Deleting a missing
// document reports KindNotFound.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.docs.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return domain.WrapInternal("delete document", err)
	}
	if res.DeletedCount == 0 {
		return domain.NotFoundf("document %s not found", id)
	}
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": id.String()}); err != nil {
		return domain.WrapInternal("delete document chunks", err)
	}
	return nil
}

// SaveChunks replaces the stored chunks of each document represented in the
// batch. An empty batch is a no-op.
func (s *Store) SaveChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	seen := make(map[uuid.UUID]struct{})
	records := make([]any, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": c.DocumentID.String()}); err != nil {
				return domain.WrapInternal("clear document chunks", err)
			}
		}
		records = append(records, toChunkRecord(&c))
	}
	if _, err := s.chunks.InsertMany(ctx, records); err != nil {
		return domain.WrapInternal("save chunks", err)
	}
	return nil
}

// GetChunks returns the document's chunks ordered by chunk index.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentChunk, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.chunks.Find(ctx,
		bson.M{"document_id": documentID.String()},
		options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}}),
	)
	if err != nil {
		return nil, domain.WrapInternal("get chunks", err)
	}
	var recs []chunkRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, domain.WrapInternal("decode chunks", err)
	}
	chunks := make([]domain.DocumentChunk, 0, len(recs))
	for i := range recs {
		c, err := fromChunkRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type documentRecord struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	ContentType string    `bson:"content_type"`
	Metadata    string    `bson:"metadata"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type chunkRecord struct {
	ID         string               `bson:"_id"`
	DocumentID string               `bson:"document_id"`
	Content    string               `bson:"content"`
	ChunkIndex int                  `bson:"chunk_index"`
	Metadata   domain.ChunkMetadata `bson:"metadata,omitempty"`
}

func toDocumentRecord(doc *domain.Document) *documentRecord {
	return &documentRecord{
		ID:          doc.ID.String(),
		Name:        doc.Name,
		ContentType: doc.ContentType,
		Metadata:    string(doc.Metadata),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}

func fromDocumentRecord(rec *documentRecord) (*domain.Document, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, domain.Internalf("document record: invalid id %q", rec.ID)
	}
	return &domain.Document{
		ID:          id,
		Name:        rec.Name,
		ContentType: rec.ContentType,
		Metadata:    []byte(rec.Metadata),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func toChunkRecord(c *domain.DocumentChunk) *chunkRecord {
	return &chunkRecord{
		ID:         c.ID.String(),
		DocumentID: c.DocumentID.String(),
		Content:    c.Content,
		ChunkIndex: c.ChunkIndex,
		Metadata:   c.Metadata,
	}
}

func fromChunkRecord(rec *chunkRecord) (*domain.DocumentChunk, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, domain.Internalf("chunk record: invalid id %q", rec.ID)
	}
	docID, err := uuid.Parse(rec.DocumentID)
	if err != nil {
		return nil, domain.Internalf("chunk record: invalid document id %q", rec.DocumentID)
	}
	return &domain.DocumentChunk{
		ID:         id,
		DocumentID: docID,
		Content:    rec.Content,
		ChunkIndex: rec.ChunkIndex,
		Metadata:   rec.Metadata,
	}, nil
}

func ensureIndexes(ctx context.Context, chunks collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
	}
	_, err := chunks.Indexes().CreateOne(ctx, index)
	return err
}

var _ domain.DocumentStore = (*Store)(nil)
