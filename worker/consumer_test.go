package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/queue"
)

type stubAgent struct {
	response  string
	err       error
	delay     time.Duration
	histories [][]domain.Message
	messages  []string
}

func (a *stubAgent) ChatWithHistory(_ context.Context, message string, history []domain.Message) (string, error) {
	a.messages = append(a.messages, message)
	a.histories = append(a.histories, history)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return "", a.err
	}
	return a.response, nil
}

type stubIndexer struct {
	indexed   [][]domain.DocumentChunk
	deleted   []uuid.UUID
	indexErr  error
	deleteErr error
}

func (i *stubIndexer) IndexChunks(_ context.Context, chunks []domain.DocumentChunk) error {
	i.indexed = append(i.indexed, chunks)
	return i.indexErr
}

func (i *stubIndexer) DeleteDocument(_ context.Context, documentID uuid.UUID) error {
	i.deleted = append(i.deleted, documentID)
	return i.deleteErr
}

type harness struct {
	consumer      *Consumer
	producer      *queue.Producer
	conversations *queue.Conversations
	agent         *stubAgent
	indexer       *stubIndexer
	srv           *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	producer, err := queue.NewProducer(queue.ProducerOptions{Redis: rdb})
	require.NoError(t, err)
	conversations, err := queue.NewConversations(queue.ConversationsOptions{Redis: rdb})
	require.NoError(t, err)

	agent := &stubAgent{response: "ok"}
	indexer := &stubIndexer{}
	consumer, err := NewConsumer(Options{
		Redis:         rdb,
		Statuses:      producer,
		Conversations: conversations,
		Agent:         agent,
		Indexer:       indexer,
		Concurrency:   2,
		ChunkSize:     30,
		PopTimeout:    50 * time.Millisecond,
		Pacing:        5 * time.Millisecond,
	})
	require.NoError(t, err)
	return &harness{
		consumer:      consumer,
		producer:      producer,
		conversations: conversations,
		agent:         agent,
		indexer:       indexer,
		srv:           srv,
	}
}

func (h *harness) status(t *testing.T, jobID uuid.UUID) *queue.JobResult {
	t.Helper()
	status, err := h.producer.GetJobStatus(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, status)
	return status
}

func TestChatJobCompletesAndPersistsConversation(t *testing.T) {
	h := newHarness(t)
	jobID, err := h.producer.PushChatJob(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)

	var result struct {
		Response       string    `json:"response"`
		ConversationID uuid.UUID `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(status.Result, &result))
	assert.Equal(t, "ok", result.Response)
	require.NotEqual(t, uuid.Nil, result.ConversationID)

	conv, err := h.conversations.Load(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "hi"}, conv.Messages[0])
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "ok"}, conv.Messages[1])

	// First turn has no history.
	require.Len(t, h.agent.histories, 1)
	assert.Empty(t, h.agent.histories[0])
}

func TestChatJobReusesConversationAndPassesHistory(t *testing.T) {
	h := newHarness(t)
	convID := uuid.New()

	conv := domain.NewConversation(convID)
	conv.Append(domain.RoleUser, "hello")
	conv.Append(domain.RoleAssistant, "hi there")
	require.NoError(t, h.conversations.Save(context.Background(), conv))

	jobID, err := h.producer.PushChatJob(context.Background(), "how are you?", &convID, nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)

	// History excludes the just-appended user turn.
	require.Len(t, h.agent.histories, 1)
	require.Len(t, h.agent.histories[0], 2)
	assert.Equal(t, "hello", h.agent.histories[0][0].Content)

	loaded, err := h.conversations.Load(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 4)
	assert.Equal(t, "how are you?", loaded.Messages[2].Content)
	assert.Equal(t, "ok", loaded.Messages[3].Content)
}

func TestChatJobFailureDiscardsConversation(t *testing.T) {
	h := newHarness(t)
	h.agent.err = domain.Timeoutf("chat timed out")
	convID := uuid.New()

	jobID, err := h.producer.PushChatJob(context.Background(), "hi", &convID, nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "chat timed out")

	// The user turn is not persisted on failure.
	conv, err := h.conversations.Load(context.Background(), convID)
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestEmbedJobChunksAndIndexes(t *testing.T) {
	h := newHarness(t)
	docID := uuid.New()
	jobID, err := h.producer.PushEmbedJob(context.Background(), docID,
		"First paragraph.\n\nSecond paragraph.\n\nThird paragraph.", nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)

	var result struct {
		DocumentID    uuid.UUID `json:"document_id"`
		ChunksCreated int       `json:"chunks_created"`
	}
	require.NoError(t, json.Unmarshal(status.Result, &result))
	assert.Equal(t, docID, result.DocumentID)
	assert.Equal(t, 3, result.ChunksCreated)

	require.Len(t, h.indexer.indexed, 1)
	assert.Len(t, h.indexer.indexed[0], 3)
}

func TestEmbedJobEmptyContentCompletesWithZero(t *testing.T) {
	h := newHarness(t)
	jobID, err := h.producer.PushEmbedJob(context.Background(), uuid.New(), "", nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)
	assert.Contains(t, string(status.Result), `"chunks_created":0`)
	assert.Empty(t, h.indexer.indexed)
}

func TestEmbedJobFailureRecordsError(t *testing.T) {
	h := newHarness(t)
	h.indexer.indexErr = domain.Externalf("embedding provider down")

	jobID, err := h.producer.PushEmbedJob(context.Background(), uuid.New(), "Some content.", nil)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "embedding provider down")
}

func TestIndexJobClearsVectors(t *testing.T) {
	h := newHarness(t)
	docID := uuid.New()
	jobID, err := h.producer.PushIndexJob(context.Background(), docID)
	require.NoError(t, err)

	h.consumer.DispatchOnce(context.Background())

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)

	var result struct {
		DocumentID uuid.UUID `json:"document_id"`
		Indexed    bool      `json:"indexed"`
		Action     string    `json:"action"`
	}
	require.NoError(t, json.Unmarshal(status.Result, &result))
	assert.Equal(t, docID, result.DocumentID)
	assert.True(t, result.Indexed)
	assert.Equal(t, "cleared_vectors", result.Action)
	assert.Equal(t, []uuid.UUID{docID}, h.indexer.deleted)
}

func TestDispatchTimeoutIsNoop(t *testing.T) {
	h := newHarness(t)
	h.consumer.DispatchOnce(context.Background())
	// Nothing enqueued, nothing processed.
	assert.Empty(t, h.agent.messages)
	assert.Empty(t, h.indexer.indexed)
}

func TestRunDrainsQueues(t *testing.T) {
	h := newHarness(t)
	var jobIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		jobID, err := h.producer.PushChatJob(context.Background(), "hi", nil, nil)
		require.NoError(t, err)
		jobIDs = append(jobIDs, jobID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, h.consumer.Run(ctx))

	for _, jobID := range jobIDs {
		status := h.status(t, jobID)
		assert.Equal(t, queue.StatusCompleted, status.Status)
	}
}

func TestRunShutdownCompletesInFlightJob(t *testing.T) {
	h := newHarness(t)
	h.agent.delay = 150 * time.Millisecond

	jobID, err := h.producer.PushChatJob(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	// Cancel Run while the job is still inside the agent call. Drain must
	// let it finish and write its terminal status.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, h.consumer.Run(ctx))

	status := h.status(t, jobID)
	assert.Equal(t, queue.StatusCompleted, status.Status)
	require.NotNil(t, status.CompletedAt)
}
