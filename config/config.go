// Package config loads the two YAML configuration files: agent.yaml for
// runtime settings and prompts.yaml for the system preamble and tool
// prompts. Missing files fall back to documented defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the content of agent.yaml.
	Config struct {
		LLM         LLM         `yaml:"llm"`
		Embedding   Embedding   `yaml:"embedding"`
		VectorStore VectorStore `yaml:"vector_store"`
		RAG         RAG         `yaml:"rag"`
		Worker      Worker      `yaml:"worker"`
		Tools       Tools       `yaml:"tools"`
		CORS        CORS        `yaml:"cors"`
	}

	// LLM configures the chat model.
	LLM struct {
		Model          string `yaml:"model"`
		MaxTokens      int    `yaml:"max_tokens"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	}

	// Embedding configures the embedding provider.
	Embedding struct {
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	}

	// VectorStore configures the vector database.
	VectorStore struct {
		Collection string `yaml:"collection"`
	}

	// RAG configures retrieval.
	RAG struct {
		TopK      int     `yaml:"top_k"`
		ChunkSize int     `yaml:"chunk_size"`
		MinScore  float32 `yaml:"min_score"`
	}

	// Worker configures the job consumer.
	Worker struct {
		Concurrency            int `yaml:"concurrency"`
		ConversationTTLSeconds int `yaml:"conversation_ttl_seconds"`
		ResultTTLSeconds       int `yaml:"result_ttl_seconds"`
	}

	// Tools configures the tools advertised to the model.
	Tools struct {
		KnowledgeBase KnowledgeBase `yaml:"knowledge_base"`
	}

	// KnowledgeBase configures the retrieval tool.
	KnowledgeBase struct {
		Name             string `yaml:"name"`
		Description      string `yaml:"description"`
		NoResultsMessage string `yaml:"no_results_message"`
	}

	// CORS configures the HTTP cross-origin policy.
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	}

	// Prompts is the content of prompts.yaml.
	Prompts struct {
		Agent struct {
			System string `yaml:"system"`
		} `yaml:"agent"`
		Tools struct {
			KnowledgeBase struct {
				Description      string `yaml:"description"`
				QueryDescription string `yaml:"query_description"`
			} `yaml:"knowledge_base"`
		} `yaml:"tools"`
	}
)

// Default returns the configuration used when agent.yaml is absent.
func Default() *Config {
	return &Config{
		LLM: LLM{
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Embedding: Embedding{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		VectorStore: VectorStore{Collection: "documents"},
		RAG: RAG{
			TopK:      5,
			ChunkSize: 1000,
		},
		Worker: Worker{
			Concurrency:            4,
			ConversationTTLSeconds: 86400,
			ResultTTLSeconds:       3600,
		},
		Tools: Tools{KnowledgeBase: KnowledgeBase{
			Name:             "knowledge_base",
			NoResultsMessage: "No relevant documents found.",
		}},
		CORS: CORS{AllowedOrigins: []string{"*"}},
	}
}

// DefaultPrompts returns the prompts used when prompts.yaml is absent.
func DefaultPrompts() *Prompts {
	var p Prompts
	p.Agent.System = "You are a helpful assistant with access to a knowledge base. " +
		"Use the knowledge_base tool to look up relevant documents before answering " +
		"questions about indexed content."
	p.Tools.KnowledgeBase.Description = "Search the indexed knowledge base for documents relevant to a query."
	p.Tools.KnowledgeBase.QueryDescription = "The search query."
	return &p
}

// Load reads agent.yaml from path. A missing file returns Default();
// unparseable content is an error. Absent fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPrompts reads prompts.yaml from path with the same fallback rules as
// Load.
func LoadPrompts(path string) (*Prompts, error) {
	prompts := DefaultPrompts()
	if err := loadYAML(path, prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LLMTimeout returns the configured LLM timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ConversationTTL returns the conversation TTL as a duration.
func (c *Config) ConversationTTL() time.Duration {
	return time.Duration(c.Worker.ConversationTTLSeconds) * time.Second
}

// ResultTTL returns the status record TTL as a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Worker.ResultTTLSeconds) * time.Second
}
