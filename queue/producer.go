package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/domain"
)

const (
	// DefaultResultTTL bounds how long status records survive in Redis.
	DefaultResultTTL = time.Hour

	// DefaultConversationTTL bounds how long idle conversations survive.
	DefaultConversationTTL = 24 * time.Hour
)

// ProducerOptions configures the producer.
type ProducerOptions struct {
	Redis redis.UniversalClient
	// ResultTTL overrides DefaultResultTTL when positive.
	ResultTTL time.Duration
}

// Producer enqueues job envelopes and tracks their status records.
type Producer struct {
	rdb       redis.UniversalClient
	resultTTL time.Duration
}

// NewProducer builds a producer.
func NewProducer(opts ProducerOptions) (*Producer, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Producer{rdb: opts.Redis, resultTTL: ttl}, nil
}

// PushChatJob enqueues a chat job and writes its pending status.
func (p *Producer) PushChatJob(ctx context.Context, message string, conversationID *uuid.UUID, agentID *string) (uuid.UUID, error) {
	if message == "" {
		return uuid.Nil, domain.Validationf("message is required")
	}
	jobID := uuid.New()
	return jobID, p.enqueue(ctx, QueueChat, jobID, &ProcessChatJob{
		JobID:          jobID,
		Message:        message,
		ConversationID: conversationID,
		AgentID:        agentID,
	})
}

// PushEmbedJob enqueues an embed job and writes its pending status.
func (p *Producer) PushEmbedJob(ctx context.Context, documentID uuid.UUID, content string, metadata json.RawMessage) (uuid.UUID, error) {
	jobID := uuid.New()
	return jobID, p.enqueue(ctx, QueueEmbed, jobID, &EmbedDocumentJob{
		JobID:      jobID,
		DocumentID: documentID,
		Content:    content,
		Metadata:   metadata,
	})
}

// PushIndexJob enqueues an index job and writes its pending status.
func (p *Producer) PushIndexJob(ctx context.Context, documentID uuid.UUID) (uuid.UUID, error) {
	jobID := uuid.New()
	return jobID, p.enqueue(ctx, QueueIndex, jobID, &IndexDocumentJob{
		JobID:      jobID,
		DocumentID: documentID,
	})
}

// enqueue serializes the envelope, left-pushes it onto the queue, then
// writes the pending status. A failed status write after a successful push
// is surfaced but the job still executes.
func (p *Producer) enqueue(ctx context.Context, queueName string, jobID uuid.UUID, envelope any) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return domain.WrapInternal("marshal job envelope", err)
	}
	if err := p.rdb.LPush(ctx, queueName, payload).Err(); err != nil {
		return domain.WrapExternal(fmt.Sprintf("enqueue on %s", queueName), err)
	}
	return p.WriteStatus(ctx, Pending(jobID))
}

// WriteStatus stores the status record under job:status:{job_id} with the
// result TTL.
func (p *Producer) WriteStatus(ctx context.Context, result *JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.WrapInternal("marshal job status", err)
	}
	if err := p.rdb.Set(ctx, StatusKey(result.JobID), payload, p.resultTTL).Err(); err != nil {
		return domain.WrapExternal("write job status", err)
	}
	return nil
}

// GetJobStatus reads the status record. An absent or expired record returns
// (nil, nil).
func (p *Producer) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobResult, error) {
	payload, err := p.rdb.Get(ctx, StatusKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, domain.WrapExternal("read job status", err)
	}
	var result JobResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, domain.WrapInternal("decode job status", err)
	}
	return &result, nil
}

// Ping verifies broker connectivity; the readiness probe uses it.
func (p *Producer) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
