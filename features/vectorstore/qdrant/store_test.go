package qdrant

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"
	sdk "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/domain"
)

type fakeCollections struct {
	exists      bool
	existsErr   error
	createErr   error
	createCalls int
	created     *sdk.CreateCollection
	// existsAfterCreate simulates a concurrent create by another process.
	existsAfterCreate bool
}

func (f *fakeCollections) CollectionExists(context.Context, string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if f.createCalls > 0 && f.existsAfterCreate {
		return true, nil
	}
	return f.exists, nil
}

func (f *fakeCollections) CreateCollection(_ context.Context, req *sdk.CreateCollection) error {
	f.createCalls++
	f.created = req
	return f.createErr
}

type fakePoints struct {
	upserted  []*sdk.UpsertPoints
	upsertErr error
	queryResp []*sdk.ScoredPoint
	queryErr  error
	queried   *sdk.QueryPoints
	deleted   *sdk.DeletePoints
	deleteErr error
}

func (f *fakePoints) Upsert(_ context.Context, req *sdk.UpsertPoints) (*sdk.UpdateResult, error) {
	f.upserted = append(f.upserted, req)
	return &sdk.UpdateResult{}, f.upsertErr
}

func (f *fakePoints) Query(_ context.Context, req *sdk.QueryPoints) ([]*sdk.ScoredPoint, error) {
	f.queried = req
	return f.queryResp, f.queryErr
}

func (f *fakePoints) Delete(_ context.Context, req *sdk.DeletePoints) (*sdk.UpdateResult, error) {
	f.deleted = req
	return &sdk.UpdateResult{}, f.deleteErr
}

func newStore(t *testing.T, collections *fakeCollections, points *fakePoints) *Store {
	t.Helper()
	s, err := New(context.Background(), collections, points, Options{Collection: "documents", Dimension: 3})
	require.NoError(t, err)
	return s
}

func TestNewCreatesMissingCollection(t *testing.T) {
	collections := &fakeCollections{exists: false}
	newStore(t, collections, &fakePoints{})

	require.Equal(t, 1, collections.createCalls)
	assert.Equal(t, "documents", collections.created.CollectionName)
	params := collections.created.VectorsConfig.GetParams()
	require.NotNil(t, params)
	assert.Equal(t, uint64(3), params.Size)
	assert.Equal(t, sdk.Distance_Cosine, params.Distance)
}

func TestNewSkipsExistingCollection(t *testing.T) {
	collections := &fakeCollections{exists: true}
	newStore(t, collections, &fakePoints{})
	assert.Zero(t, collections.createCalls)
}

func TestNewToleratesCreateRace(t *testing.T) {
	collections := &fakeCollections{
		exists:            false,
		createErr:         errors.New("already exists"),
		existsAfterCreate: true,
	}
	newStore(t, collections, &fakePoints{})
	assert.Equal(t, 1, collections.createCalls)
}

func TestNewPropagatesCreateFailure(t *testing.T) {
	collections := &fakeCollections{exists: false, createErr: errors.New("boom")}
	_, err := New(context.Background(), collections, &fakePoints{}, Options{Collection: "documents", Dimension: 3})
	assert.Error(t, err)
}

func TestUpsertPointShape(t *testing.T) {
	points := &fakePoints{}
	s := newStore(t, &fakeCollections{exists: true}, points)

	chunk := domain.NewChunk(uuid.New(), "some content", 2)
	require.NoError(t, s.Upsert(context.Background(), &chunk, domain.Embedding{1, 2, 3}))

	require.Len(t, points.upserted, 1)
	req := points.upserted[0]
	assert.Equal(t, "documents", req.CollectionName)
	require.Len(t, req.Points, 1)
	p := req.Points[0]

	wantID := binary.LittleEndian.Uint64(chunk.ID[:8])
	assert.Equal(t, wantID, p.Id.GetNum())
	assert.Equal(t, []float32{1, 2, 3}, p.Vectors.GetVector().GetDense().Data)
	assert.Equal(t, chunk.ID.String(), p.Payload["chunk_id"].GetStringValue())
	assert.Equal(t, chunk.DocumentID.String(), p.Payload["document_id"].GetStringValue())
	assert.Equal(t, "some content", p.Payload["content"].GetStringValue())
	assert.Equal(t, int64(2), p.Payload["chunk_index"].GetIntegerValue())
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := newStore(t, &fakeCollections{exists: true}, &fakePoints{})
	chunk := domain.NewChunk(uuid.New(), "content", 0)
	err := s.Upsert(context.Background(), &chunk, domain.Embedding{1, 2})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestSearchReconstructsChunks(t *testing.T) {
	chunkID, docID := uuid.New(), uuid.New()
	points := &fakePoints{queryResp: []*sdk.ScoredPoint{{
		Score: 0.92,
		Payload: sdk.NewValueMap(map[string]any{
			"chunk_id":    chunkID.String(),
			"document_id": docID.String(),
			"content":     "matched text",
			"chunk_index": int64(1),
		}),
	}}}
	s := newStore(t, &fakeCollections{exists: true}, points)

	results, err := s.Search(context.Background(), domain.Embedding{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunkID, results[0].Chunk.ID)
	assert.Equal(t, docID, results[0].Chunk.DocumentID)
	assert.Equal(t, "matched text", results[0].Chunk.Content)
	assert.Equal(t, 1, results[0].Chunk.ChunkIndex)
	assert.InDelta(t, 0.92, results[0].Score, 1e-6)

	require.NotNil(t, points.queried)
	require.NotNil(t, points.queried.Limit)
	assert.Equal(t, uint64(5), *points.queried.Limit)
}

func TestSearchSkipsMalformedPayload(t *testing.T) {
	chunkID, docID := uuid.New(), uuid.New()
	points := &fakePoints{queryResp: []*sdk.ScoredPoint{
		{Payload: sdk.NewValueMap(map[string]any{"chunk_id": "not-a-uuid"})},
		{
			Score: 0.5,
			Payload: sdk.NewValueMap(map[string]any{
				"chunk_id":    chunkID.String(),
				"document_id": docID.String(),
				"content":     "good point",
				"chunk_index": int64(0),
			}),
		},
	}}
	s := newStore(t, &fakeCollections{exists: true}, points)

	results, err := s.Search(context.Background(), domain.Embedding{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunkID, results[0].Chunk.ID)
}

func TestSearchZeroTopK(t *testing.T) {
	points := &fakePoints{}
	s := newStore(t, &fakeCollections{exists: true}, points)
	results, err := s.Search(context.Background(), domain.Embedding{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Nil(t, points.queried)
}

func TestDeleteByDocumentFilters(t *testing.T) {
	points := &fakePoints{}
	s := newStore(t, &fakeCollections{exists: true}, points)
	docID := uuid.New()

	require.NoError(t, s.DeleteByDocument(context.Background(), docID))
	require.NotNil(t, points.deleted)
	assert.Equal(t, "documents", points.deleted.CollectionName)
	filter := points.deleted.Points.GetFilter()
	require.NotNil(t, filter)
	require.Len(t, filter.Must, 1)
	field := filter.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, "document_id", field.Key)
	assert.Equal(t, docID.String(), field.GetMatch().GetKeyword())
}

func TestExternalErrorsCarryKind(t *testing.T) {
	points := &fakePoints{
		upsertErr: errors.New("unavailable"),
		queryErr:  errors.New("unavailable"),
		deleteErr: errors.New("unavailable"),
	}
	s := newStore(t, &fakeCollections{exists: true}, points)
	chunk := domain.NewChunk(uuid.New(), "content", 0)

	err := s.Upsert(context.Background(), &chunk, domain.Embedding{1, 0, 0})
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))

	_, err = s.Search(context.Background(), domain.Embedding{1, 0, 0}, 1)
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))

	err = s.DeleteByDocument(context.Background(), uuid.New())
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))
}
