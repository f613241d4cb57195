// Package queue defines the Redis-backed job pipeline: envelope and status
// types, the producer that enqueues work and the keys shared with the worker.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue names. Producers left-push envelopes; the worker right-pops with a
// timeout so each list behaves as FIFO.
const (
	QueueChat  = "jobs:chat"
	QueueEmbed = "jobs:embed"
	QueueIndex = "jobs:index"
)

// Queues lists every queue the worker consumes, in pop priority order.
var Queues = []string{QueueChat, QueueEmbed, QueueIndex}

// StatusKey returns the Redis key of a job status record.
func StatusKey(jobID uuid.UUID) string { return "job:status:" + jobID.String() }

// ConversationKey returns the Redis key of a conversation record.
func ConversationKey(id uuid.UUID) string { return "conversation:" + id.String() }

// Status is the lifecycle state of a job. Transitions are monotone:
// pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// JobResult is the status record stored under job:status:{job_id}.
type JobResult struct {
	JobID       uuid.UUID       `json:"job_id"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Pending builds the initial status record.
func Pending(jobID uuid.UUID) *JobResult {
	return &JobResult{JobID: jobID, Status: StatusPending}
}

// Processing builds the in-flight status record.
func Processing(jobID uuid.UUID) *JobResult {
	return &JobResult{JobID: jobID, Status: StatusProcessing}
}

// Completed builds a terminal success record carrying the result payload.
func Completed(jobID uuid.UUID, result json.RawMessage) *JobResult {
	now := time.Now().UTC()
	return &JobResult{JobID: jobID, Status: StatusCompleted, Result: result, CompletedAt: &now}
}

// Failed builds a terminal failure record carrying the error text.
func Failed(jobID uuid.UUID, errMsg string) *JobResult {
	now := time.Now().UTC()
	return &JobResult{JobID: jobID, Status: StatusFailed, Error: errMsg, CompletedAt: &now}
}

// ProcessChatJob asks the worker to answer a chat message.
type ProcessChatJob struct {
	JobID          uuid.UUID  `json:"job_id"`
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	AgentID        *string    `json:"agent_id,omitempty"`
}

// EmbedDocumentJob asks the worker to chunk and index document content.
type EmbedDocumentJob struct {
	JobID      uuid.UUID       `json:"job_id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// IndexDocumentJob asks the worker to clear a document's vectors. The name
// is historical; re-indexing after a clear goes through EmbedDocumentJob.
type IndexDocumentJob struct {
	JobID      uuid.UUID `json:"job_id"`
	DocumentID uuid.UUID `json:"document_id"`
}
