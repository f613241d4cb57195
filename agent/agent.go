// Package agent drives chat completions: it assembles prompts from
// conversation history, advertises the knowledge-base tool and runs the
// model/tool loop under a single execution timeout.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/model"
)

const (
	defaultTimeout = 2 * time.Minute

	historyHeader = "Previous conversation:\n"
	currentPrefix = "\n\nCurrent message from user: "
)

// Options configures the agent.
type Options struct {
	Model model.Client
	// Preamble is the system prompt sent with every request.
	Preamble string
	// Tool is the knowledge-base tool advertised to the model. Optional;
	// without it the agent is a plain chat completion.
	Tool *KnowledgeBaseTool
	// Timeout bounds each chat exchange, tool turns included. Defaults to
	// 2 minutes.
	Timeout time.Duration
}

// Agent answers chat messages with optional conversation history and tool
// use.
type Agent struct {
	model    model.Client
	preamble string
	tool     *KnowledgeBaseTool
	timeout  time.Duration
}

// New builds an agent.
func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Agent{
		model:    opts.Model,
		preamble: opts.Preamble,
		tool:     opts.Tool,
		timeout:  timeout,
	}, nil
}

// Chat answers a message with no prior history.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	return a.ChatWithHistory(ctx, message, nil)
}

// ChatWithHistory answers a message in the context of earlier turns. A
// single tool round is allowed.
func (a *Agent) ChatWithHistory(ctx context.Context, message string, history []domain.Message) (string, error) {
	return a.run(ctx, message, history, 1)
}

// ChatMultiTurn answers a message allowing up to maxTurns tool-using turns.
// The execution timeout wraps the whole exchange.
func (a *Agent) ChatMultiTurn(ctx context.Context, message string, maxTurns int) (string, error) {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return a.run(ctx, message, nil, maxTurns)
}

func (a *Agent) run(ctx context.Context, message string, history []domain.Message, maxTurns int) (string, error) {
	if message == "" {
		return "", domain.Validationf("message is required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var tools []model.ToolDefinition
	if a.tool != nil {
		tools = []model.ToolDefinition{a.tool.Definition()}
	}
	messages := []model.Message{{Role: model.RoleUser, Text: buildPrompt(message, history)}}

	for turn := 0; ; turn++ {
		resp, err := a.model.Complete(ctx, &model.Request{
			System:   a.preamble,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return "", domain.Timeoutf("chat timed out after %s", a.timeout)
			}
			return "", domain.WrapExternal("chat completion", err)
		}
		if len(resp.ToolCalls) == 0 || a.tool == nil || turn >= maxTurns {
			return resp.Text, nil
		}
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, model.Message{
			Role:        model.RoleUser,
			ToolResults: a.executeToolCalls(ctx, resp.ToolCalls),
		})
	}
}

func (a *Agent) executeToolCalls(ctx context.Context, calls []model.ToolCall) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))
	for i, call := range calls {
		if call.Name != a.tool.Name() {
			results[i] = model.ToolResult{
				ToolUseID: call.ID,
				Content:   fmt.Sprintf("unknown tool %q", call.Name),
				IsError:   true,
			}
			continue
		}
		content, err := a.tool.Call(ctx, call.Input)
		if err != nil {
			results[i] = model.ToolResult{ToolUseID: call.ID, Content: err.Error(), IsError: true}
			continue
		}
		results[i] = model.ToolResult{ToolUseID: call.ID, Content: content}
	}
	return results
}

// buildPrompt renders the message, prefixed with labelled history lines when
// any exist.
func buildPrompt(message string, history []domain.Message) string {
	if len(history) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString(historyHeader)
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	b.WriteString(currentPrefix)
	b.WriteString(message)
	return b.String()
}
