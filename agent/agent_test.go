package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/model"
)

// scriptedModel returns canned responses in order and records requests.
type scriptedModel struct {
	responses []*model.Response
	err       error
	block     bool
	requests  []*model.Request
}

func (m *scriptedModel) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	m.requests = append(m.requests, req)
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

type stubRetriever struct {
	results []domain.SearchResult
	err     error
	queries []string
}

func (r *stubRetriever) RetrieveTopK(_ context.Context, query string, _ int) ([]domain.SearchResult, error) {
	r.queries = append(r.queries, query)
	return r.results, r.err
}

func newAgent(t *testing.T, m model.Client, tool *KnowledgeBaseTool) *Agent {
	t.Helper()
	a, err := New(Options{Model: m, Preamble: "You are helpful.", Tool: tool, Timeout: time.Second})
	require.NoError(t, err)
	return a
}

func TestChatNoHistoryPromptIsBareMessage(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{{Text: "hi"}}}
	a := newAgent(t, m, nil)

	out, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	require.Len(t, m.requests, 1)
	require.Len(t, m.requests[0].Messages, 1)
	assert.Equal(t, "hello", m.requests[0].Messages[0].Text)
	assert.Equal(t, "You are helpful.", m.requests[0].System)
}

func TestChatWithHistoryPromptTemplate(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{{Text: "fine"}}}
	a := newAgent(t, m, nil)

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "hi there"},
	}
	_, err := a.ChatWithHistory(context.Background(), "how are you?", history)
	require.NoError(t, err)

	want := "Previous conversation:\n" +
		"User: hello\n" +
		"Assistant: hi there" +
		"\n\nCurrent message from user: how are you?"
	assert.Equal(t, want, m.requests[0].Messages[0].Text)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	a := newAgent(t, &scriptedModel{}, nil)
	_, err := a.Chat(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestChatModelErrorIsExternal(t *testing.T) {
	m := &scriptedModel{err: errors.New("overloaded")}
	a := newAgent(t, m, nil)

	_, err := a.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))
}

func TestChatTimeout(t *testing.T) {
	m := &scriptedModel{block: true}
	a, err := New(Options{Model: m, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestChatRunsToolRound(t *testing.T) {
	retriever := &stubRetriever{results: []domain.SearchResult{
		{Chunk: domain.DocumentChunk{Content: "redis is fast"}, Score: 0.9},
		{Chunk: domain.DocumentChunk{Content: "qdrant stores vectors"}, Score: 0.8},
	}}
	tool := NewKnowledgeBaseTool(retriever, ToolConfig{})
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{
			ID: "toolu_1", Name: "knowledge_base", Input: json.RawMessage(`{"query":"redis"}`),
		}}},
		{Text: "redis is an in-memory store"},
	}}
	a := newAgent(t, m, tool)

	out, err := a.Chat(context.Background(), "what is redis?")
	require.NoError(t, err)
	assert.Equal(t, "redis is an in-memory store", out)
	assert.Equal(t, []string{"redis"}, retriever.queries)

	// Second request carries the assistant tool call and the tool result.
	require.Len(t, m.requests, 2)
	second := m.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, model.RoleAssistant, second.Messages[1].Role)
	require.Len(t, second.Messages[2].ToolResults, 1)
	result := second.Messages[2].ToolResults[0]
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.Equal(t, "[1] redis is fast\n\n[2] qdrant stores vectors", result.Content)
	assert.False(t, result.IsError)
}

func TestChatToolErrorFedBackToModel(t *testing.T) {
	retriever := &stubRetriever{err: domain.Externalf("vector store down")}
	tool := NewKnowledgeBaseTool(retriever, ToolConfig{})
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{
			ID: "toolu_1", Name: "knowledge_base", Input: json.RawMessage(`{"query":"x"}`),
		}}},
		{Text: "sorry, lookup failed"},
	}}
	a := newAgent(t, m, tool)

	out, err := a.Chat(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "sorry, lookup failed", out)

	result := m.requests[1].Messages[2].ToolResults[0]
	assert.True(t, result.IsError)
}

func TestChatUnknownToolReported(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubRetriever{}, ToolConfig{})
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{
			ID: "toolu_1", Name: "mystery", Input: json.RawMessage(`{}`),
		}}},
		{Text: "ok"},
	}}
	a := newAgent(t, m, tool)

	_, err := a.Chat(context.Background(), "question")
	require.NoError(t, err)

	result := m.requests[1].Messages[2].ToolResults[0]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "mystery")
}

func TestChatMultiTurnBoundsToolRounds(t *testing.T) {
	retriever := &stubRetriever{results: []domain.SearchResult{
		{Chunk: domain.DocumentChunk{Content: "chunk"}, Score: 0.5},
	}}
	tool := NewKnowledgeBaseTool(retriever, ToolConfig{})
	// The model asks for the tool on every turn; the agent must stop after
	// maxTurns rounds.
	toolResp := &model.Response{ToolCalls: []model.ToolCall{{
		ID: "toolu_n", Name: "knowledge_base", Input: json.RawMessage(`{"query":"more"}`),
	}}}
	m := &scriptedModel{responses: []*model.Response{toolResp}}
	a := newAgent(t, m, tool)

	_, err := a.ChatMultiTurn(context.Background(), "dig deep", 3)
	require.NoError(t, err)
	assert.Len(t, m.requests, 4)
	assert.Len(t, retriever.queries, 3)
}

func TestKnowledgeBaseToolNoResults(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubRetriever{}, ToolConfig{NoResultsMessage: "nothing indexed yet"})
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"anything"}`))
	require.NoError(t, err)
	assert.Equal(t, "nothing indexed yet", out)
}

func TestKnowledgeBaseToolDefaults(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubRetriever{}, ToolConfig{})
	def := tool.Definition()
	assert.Equal(t, "knowledge_base", def.Name)
	assert.NotEmpty(t, def.Description)
	assert.Equal(t, []string{"query"}, def.InputSchema["required"])

	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	assert.Equal(t, "No relevant documents found.", out)
}

func TestKnowledgeBaseToolRejectsBadInput(t *testing.T) {
	tool := NewKnowledgeBaseTool(&stubRetriever{}, ToolConfig{})

	_, err := tool.Call(context.Background(), json.RawMessage(`{`))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = tool.Call(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
