package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/model"
)

// Retriever answers similarity queries for the knowledge-base tool. The RAG
// service satisfies it.
type Retriever interface {
	RetrieveTopK(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// ToolConfig configures the knowledge-base tool as advertised to the model.
type ToolConfig struct {
	// Name defaults to "knowledge_base".
	Name string
	// Description tells the model when to use the tool.
	Description string
	// QueryDescription documents the query parameter in the schema.
	QueryDescription string
	// NoResultsMessage is returned verbatim when retrieval finds nothing.
	// Defaults to "No relevant documents found.".
	NoResultsMessage string
	// TopK is the number of chunks retrieved per call.
	TopK int
}

const (
	defaultToolName         = "knowledge_base"
	defaultToolDescription  = "Search the indexed knowledge base for documents relevant to a query."
	defaultQueryDescription = "The search query."
	defaultNoResults        = "No relevant documents found."
	defaultToolTopK         = 5
)

// KnowledgeBaseTool exposes RAG retrieval to the model as a callable tool.
type KnowledgeBaseTool struct {
	retriever Retriever
	cfg       ToolConfig
}

// NewKnowledgeBaseTool builds the tool, filling config defaults.
func NewKnowledgeBaseTool(retriever Retriever, cfg ToolConfig) *KnowledgeBaseTool {
	if cfg.Name == "" {
		cfg.Name = defaultToolName
	}
	if cfg.Description == "" {
		cfg.Description = defaultToolDescription
	}
	if cfg.QueryDescription == "" {
		cfg.QueryDescription = defaultQueryDescription
	}
	if cfg.NoResultsMessage == "" {
		cfg.NoResultsMessage = defaultNoResults
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultToolTopK
	}
	return &KnowledgeBaseTool{retriever: retriever, cfg: cfg}
}

// Name returns the tool name advertised to the model.
func (t *KnowledgeBaseTool) Name() string { return t.cfg.Name }

// Definition renders the tool declaration sent with every request.
func (t *KnowledgeBaseTool) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.cfg.Name,
		Description: t.cfg.Description,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": t.cfg.QueryDescription,
				},
			},
			"required": []string{"query"},
		},
	}
}

type toolInput struct {
	Query string `json:"query"`
}

// Call executes the tool with the model-provided input and renders retrieved
// chunks as a numbered list separated by blank lines.
func (t *KnowledgeBaseTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	var args toolInput
	if err := json.Unmarshal(input, &args); err != nil {
		return "", domain.Validationf("knowledge base tool: invalid input: %v", err)
	}
	if args.Query == "" {
		return "", domain.Validationf("knowledge base tool: query is required")
	}
	results, err := t.retriever.RetrieveTopK(ctx, args.Query, t.cfg.TopK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return t.cfg.NoResultsMessage, nil
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("[%d] %s", i+1, r.Chunk.Content)
	}
	return strings.Join(lines, "\n\n"), nil
}
