// Command worker consumes the job queues: chat completions, document
// embedding and vector index maintenance.
//
// # Configuration
//
// Environment variables:
//
//	REDIS_URL          - Redis URL (default: "redis://localhost:6379")
//	QDRANT_URL         - Qdrant URL (default: "http://localhost:6334")
//	QDRANT_API_KEY     - Qdrant API key (optional)
//	ANTHROPIC_API_KEY  - Anthropic key for chat completions (required)
//	OPENAI_API_KEY     - OpenAI key for embeddings (required)
//	WORKER_CONCURRENCY - simultaneous job executions (overrides agent.yaml)
//	CONFIG_PATH        - agent.yaml location (default: "config/agent.yaml")
//	PROMPTS_PATH       - prompts.yaml location (default: "config/prompts.yaml")
//
// # Example
//
//	ANTHROPIC_API_KEY=sk-... OPENAI_API_KEY=sk-... go run ./cmd/worker
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	sdk "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/ragline/ragline/agent"
	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/features/embedding/openai"
	"github.com/ragline/ragline/features/model/anthropic"
	qdrantstore "github.com/ragline/ragline/features/vectorstore/qdrant"
	"github.com/ragline/ragline/queue"
	"github.com/ragline/ragline/rag"
	"github.com/ragline/ragline/worker"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(envOr("CONFIG_PATH", "config/agent.yaml"))
	if err != nil {
		return err
	}
	prompts, err := config.LoadPrompts(envOr("PROMPTS_PATH", "config/prompts.yaml"))
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(envOr("REDIS_URL", "redis://localhost:6379"))
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error(ctx, err, log.KV{K: "op", V: "close redis"})
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	producer, err := queue.NewProducer(queue.ProducerOptions{
		Redis:     rdb,
		ResultTTL: cfg.ResultTTL(),
	})
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	conversations, err := queue.NewConversations(queue.ConversationsOptions{
		Redis: rdb,
		TTL:   cfg.ConversationTTL(),
	})
	if err != nil {
		return fmt.Errorf("create conversation store: %w", err)
	}

	embedder, err := openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), openai.Options{
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	vectors, err := newVectorStore(ctx, cfg, embedder.Dimension())
	if err != nil {
		return err
	}

	ragSvc, err := rag.New(rag.Options{Embedder: embedder, Vectors: vectors, TopK: cfg.RAG.TopK})
	if err != nil {
		return fmt.Errorf("create retrieval service: %w", err)
	}

	model, err := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), anthropic.Options{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	tool := agent.NewKnowledgeBaseTool(ragSvc, agent.ToolConfig{
		Name:             cfg.Tools.KnowledgeBase.Name,
		Description:      prompts.Tools.KnowledgeBase.Description,
		QueryDescription: prompts.Tools.KnowledgeBase.QueryDescription,
		NoResultsMessage: cfg.Tools.KnowledgeBase.NoResultsMessage,
		TopK:             cfg.RAG.TopK,
	})
	chatAgent, err := agent.New(agent.Options{
		Model:    model,
		Preamble: prompts.Agent.System,
		Tool:     tool,
		Timeout:  cfg.LLMTimeout(),
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	consumer, err := worker.NewConsumer(worker.Options{
		Redis:         rdb,
		Statuses:      producer,
		Conversations: conversations,
		Agent:         chatAgent,
		Indexer:       ragSvc,
		Concurrency:   envIntOr("WORKER_CONCURRENCY", cfg.Worker.Concurrency),
		ChunkSize:     cfg.RAG.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	return consumer.Run(ctx)
}

// newVectorStore connects to Qdrant at QDRANT_URL. The collection is
// created with the embedding dimension so indexed vectors always match
// queries.
func newVectorStore(ctx context.Context, cfg *config.Config, dimension int) (domain.VectorStore, error) {
	rawURL := envOr("QDRANT_URL", "http://localhost:6334")
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse QDRANT_URL %q: %w", rawURL, err)
	}
	port := 6334
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("parse QDRANT_URL port %q: %w", p, err)
		}
	}
	client, err := sdk.NewClient(&sdk.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	store, err := qdrantstore.NewFromClient(ctx, client, qdrantstore.Options{
		Collection: cfg.VectorStore.Collection,
		Dimension:  dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant store: %w", err)
	}
	return store, nil
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
