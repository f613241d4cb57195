// Package worker consumes job queues and executes chat, embed and index
// jobs with bounded concurrency. Processing is at-most-once: a popped
// envelope lost to a crash is not re-queued, and failed jobs are not
// retried.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
	"golang.org/x/sync/semaphore"

	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/queue"
)

type (
	// ChatAgent answers a chat message given prior turns. The agent package
	// satisfies it.
	ChatAgent interface {
		ChatWithHistory(ctx context.Context, message string, history []domain.Message) (string, error)
	}

	// Indexer maintains the vector index. The rag package satisfies it.
	Indexer interface {
		IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error
		DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	}

	// StatusWriter records job status transitions. The queue producer
	// satisfies it.
	StatusWriter interface {
		WriteStatus(ctx context.Context, result *queue.JobResult) error
	}

	// ConversationStore loads and saves conversation state. The queue
	// conversation store satisfies it.
	ConversationStore interface {
		Load(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
		Save(ctx context.Context, conv *domain.Conversation) error
	}

	// Options configures the consumer.
	Options struct {
		Redis         redis.UniversalClient
		Statuses      StatusWriter
		Conversations ConversationStore
		Agent         ChatAgent
		Indexer       Indexer

		// Concurrency bounds simultaneous job executions. Defaults to 4.
		Concurrency int
		// ChunkSize is the paragraph chunker budget for embed jobs.
		// Defaults to 1000.
		ChunkSize int
		// PopTimeout bounds each blocking pop. Defaults to 1s.
		PopTimeout time.Duration
		// Pacing is the sleep between dispatch spawns. Defaults to 100ms.
		Pacing time.Duration
	}

	// Consumer runs the dispatch loop.
	Consumer struct {
		rdb           redis.UniversalClient
		statuses      StatusWriter
		conversations ConversationStore
		agent         ChatAgent
		indexer       Indexer

		concurrency int64
		chunkSize   int
		popTimeout  time.Duration
		pacing      time.Duration
		sem         *semaphore.Weighted
	}
)

const (
	defaultConcurrency = 4
	defaultChunkSize   = 1000
	defaultPopTimeout  = time.Second
	defaultPacing      = 100 * time.Millisecond
)

// NewConsumer builds a consumer.
func NewConsumer(opts Options) (*Consumer, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Statuses == nil {
		return nil, errors.New("status writer is required")
	}
	if opts.Conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if opts.Agent == nil {
		return nil, errors.New("chat agent is required")
	}
	if opts.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	popTimeout := opts.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}
	pacing := opts.Pacing
	if pacing <= 0 {
		pacing = defaultPacing
	}
	return &Consumer{
		rdb:           opts.Redis,
		statuses:      opts.Statuses,
		conversations: opts.Conversations,
		agent:         opts.Agent,
		indexer:       opts.Indexer,
		concurrency:   int64(concurrency),
		chunkSize:     chunkSize,
		popTimeout:    popTimeout,
		pacing:        pacing,
		sem:           semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

// Run drives the dispatch loop until the context is cancelled, then waits
// for in-flight jobs to finish.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf(ctx, "worker started, concurrency %d", c.concurrency)
	// Dispatch cycles run on a detached context: cancelling Run stops the
	// loop, but a job already popped must finish and record its terminal
	// status during drain.
	dispatchCtx := context.WithoutCancel(ctx)
	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func() {
			defer c.sem.Release(1)
			c.DispatchOnce(dispatchCtx)
		}()

		select {
		case <-ctx.Done():
		case <-time.After(c.pacing):
		}
		if ctx.Err() != nil {
			break
		}
	}
	// Draining the semaphore waits for every in-flight job.
	drain := context.Background()
	if err := c.sem.Acquire(drain, c.concurrency); err != nil {
		return err
	}
	c.sem.Release(c.concurrency)
	log.Printf(ctx, "worker stopped")
	return nil
}

// DispatchOnce pops at most one envelope and routes it. A pop timeout ends
// the cycle with no work done.
func (c *Consumer) DispatchOnce(ctx context.Context) {
	popped, err := c.rdb.BRPop(ctx, c.popTimeout, queue.Queues...).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			log.Error(ctx, err, log.KV{K: "op", V: "brpop"})
		}
		return
	}
	if len(popped) != 2 {
		return
	}
	queueName, payload := popped[0], popped[1]
	switch queueName {
	case queue.QueueChat:
		c.handleChat(ctx, payload)
	case queue.QueueEmbed:
		c.handleEmbed(ctx, payload)
	case queue.QueueIndex:
		c.handleIndex(ctx, payload)
	default:
		log.Printf(ctx, "ignoring envelope from unknown queue %q", queueName)
	}
}

type chatResult struct {
	Response       string    `json:"response"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

func (c *Consumer) handleChat(ctx context.Context, payload string) {
	var job queue.ProcessChatJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Error(ctx, err, log.KV{K: "queue", V: queue.QueueChat})
		return
	}
	c.writeStatus(ctx, queue.Processing(job.JobID))

	conversationID := uuid.New()
	if job.ConversationID != nil {
		conversationID = *job.ConversationID
	}
	conv, err := c.conversations.Load(ctx, conversationID)
	if err != nil {
		c.fail(ctx, job.JobID, err)
		return
	}
	if conv == nil {
		conv = domain.NewConversation(conversationID)
	}
	conv.Append(domain.RoleUser, job.Message)
	history := conv.History()

	response, err := c.agent.ChatWithHistory(ctx, job.Message, history)
	if err != nil {
		// The conversation is not persisted: the user turn is discarded
		// when the assistant fails.
		c.fail(ctx, job.JobID, err)
		return
	}
	conv.Append(domain.RoleAssistant, response)
	if err := c.conversations.Save(ctx, conv); err != nil {
		c.fail(ctx, job.JobID, err)
		return
	}
	c.complete(ctx, job.JobID, chatResult{Response: response, ConversationID: conversationID})
}

type embedResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	ChunksCreated int       `json:"chunks_created"`
}

func (c *Consumer) handleEmbed(ctx context.Context, payload string) {
	var job queue.EmbedDocumentJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Error(ctx, err, log.KV{K: "queue", V: queue.QueueEmbed})
		return
	}
	c.writeStatus(ctx, queue.Processing(job.JobID))

	chunks := domain.ChunkContent(job.DocumentID, job.Content, c.chunkSize)
	if len(chunks) == 0 {
		c.complete(ctx, job.JobID, embedResult{DocumentID: job.DocumentID})
		return
	}
	if err := c.indexer.IndexChunks(ctx, chunks); err != nil {
		c.fail(ctx, job.JobID, err)
		return
	}
	c.complete(ctx, job.JobID, embedResult{DocumentID: job.DocumentID, ChunksCreated: len(chunks)})
}

type indexResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Indexed    bool      `json:"indexed"`
	Action     string    `json:"action"`
}

func (c *Consumer) handleIndex(ctx context.Context, payload string) {
	var job queue.IndexDocumentJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Error(ctx, err, log.KV{K: "queue", V: queue.QueueIndex})
		return
	}
	c.writeStatus(ctx, queue.Processing(job.JobID))

	if err := c.indexer.DeleteDocument(ctx, job.DocumentID); err != nil {
		c.fail(ctx, job.JobID, err)
		return
	}
	c.complete(ctx, job.JobID, indexResult{
		DocumentID: job.DocumentID,
		Indexed:    true,
		Action:     "cleared_vectors",
	})
}

func (c *Consumer) complete(ctx context.Context, jobID uuid.UUID, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.fail(ctx, jobID, err)
		return
	}
	c.writeStatus(ctx, queue.Completed(jobID, payload))
}

func (c *Consumer) fail(ctx context.Context, jobID uuid.UUID, jobErr error) {
	log.Error(ctx, jobErr, log.KV{K: "job_id", V: jobID.String()})
	c.writeStatus(ctx, queue.Failed(jobID, jobErr.Error()))
}

func (c *Consumer) writeStatus(ctx context.Context, result *queue.JobResult) {
	if err := c.statuses.WriteStatus(ctx, result); err != nil {
		log.Error(ctx, err, log.KV{K: "job_id", V: result.JobID.String()}, log.KV{K: "status", V: string(result.Status)})
	}
}
