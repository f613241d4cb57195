// Package model defines the minimal LLM client abstraction the chat agent is
// written against. Provider adapters under features/model translate these
// structures to and from vendor SDK calls.
package model

import (
	"context"
	"encoding/json"
)

type (
	// Role identifies the author of a request message.
	Role string

	// Message is one turn handed to the model. Assistant turns may carry
	// the tool calls the model emitted; user turns may carry the results of
	// executing them.
	Message struct {
		Role        Role
		Text        string
		ToolCalls   []ToolCall
		ToolResults []ToolResult
	}

	// ToolDefinition advertises a tool to the model.
	ToolDefinition struct {
		Name        string
		Description string
		// InputSchema is a JSON Schema object describing the tool arguments.
		InputSchema map[string]any
	}

	// ToolCall is the model requesting a tool invocation.
	ToolCall struct {
		ID    string
		Name  string
		Input json.RawMessage
	}

	// ToolResult feeds a tool invocation outcome back to the model.
	ToolResult struct {
		ToolUseID string
		Content   string
		IsError   bool
	}

	// Request is a single completion exchange.
	Request struct {
		System    string
		Messages  []Message
		Tools     []ToolDefinition
		MaxTokens int
	}

	// Response is the model output for one Request. ToolCalls is non-empty
	// when the model stopped to use a tool instead of (or in addition to)
	// answering.
	Response struct {
		Text       string
		ToolCalls  []ToolCall
		StopReason string
	}

	// Client issues completion requests against one LLM provider.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
	}
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)
