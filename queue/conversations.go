package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/domain"
)

// ConversationsOptions configures the conversation store.
type ConversationsOptions struct {
	Redis redis.UniversalClient
	// TTL overrides DefaultConversationTTL when positive. Refreshed on every
	// save.
	TTL time.Duration
}

// Conversations persists conversations under conversation:{id} with a TTL.
type Conversations struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewConversations builds a conversation store.
func NewConversations(opts ConversationsOptions) (*Conversations, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &Conversations{rdb: opts.Redis, ttl: ttl}, nil
}

// Load returns the conversation or (nil, nil) when absent or expired.
func (c *Conversations) Load(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	payload, err := c.rdb.Get(ctx, ConversationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, domain.WrapExternal("load conversation", err)
	}
	var conv domain.Conversation
	if err := json.Unmarshal(payload, &conv); err != nil {
		return nil, domain.WrapInternal("decode conversation", err)
	}
	return &conv, nil
}

// Save writes the conversation and refreshes its TTL.
func (c *Conversations) Save(ctx context.Context, conv *domain.Conversation) error {
	payload, err := json.Marshal(conv)
	if err != nil {
		return domain.WrapInternal("marshal conversation", err)
	}
	if err := c.rdb.Set(ctx, ConversationKey(conv.ID), payload, c.ttl).Err(); err != nil {
		return domain.WrapExternal("save conversation", err)
	}
	return nil
}
