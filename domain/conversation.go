package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of a conversation turn. The wire form is
// lowercase; Label returns the capitalized form used in prompt rendering.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Label returns the display label for the role ("System", "User",
// "Assistant").
func (r MessageRole) Label() string {
	switch r {
	case RoleSystem:
		return "System"
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Message is a single turn in a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Conversation is an append-only, ordered record of messages for one
// dialogue. Message order is the authoritative turn order.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation builds an empty conversation with the given id.
func NewConversation(id uuid.UUID) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and refreshes UpdatedAt. Messages are never
// reordered or removed.
func (c *Conversation) Append(role MessageRole, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
	c.UpdatedAt = time.Now().UTC()
}

// History returns all messages except the last one. The worker uses this to
// hand the agent the turns that preceded the message being processed.
func (c *Conversation) History() []Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[:len(c.Messages)-1]
}

// LastUserMessage returns the content of the most recent user turn, or ""
// when the conversation has none.
func (c *Conversation) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}
