// Command api runs the HTTP server: chat job submission and tracking,
// document CRUD and similarity search.
//
// # Configuration
//
// Environment variables:
//
//	SERVER_HOST      - HTTP listen host (default: "0.0.0.0")
//	SERVER_PORT      - HTTP listen port (default: "8080")
//	REDIS_URL        - Redis URL (default: "redis://localhost:6379")
//	MONGO_URL        - Mongo connection URI; empty selects the in-memory
//	                   document store
//	MONGO_DATABASE   - Mongo database name (default: "ragline")
//	QDRANT_URL       - Qdrant URL (default: "http://localhost:6334")
//	QDRANT_API_KEY   - Qdrant API key (optional)
//	OPENAI_API_KEY   - OpenAI key for embeddings (required)
//	API_KEY          - when set, required as X-API-Key on /api/v1 routes
//	CONFIG_PATH      - agent.yaml location (default: "config/agent.yaml")
//
// # Example
//
//	OPENAI_API_KEY=sk-... go run ./cmd/api
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdk "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/log"

	"github.com/ragline/ragline/api"
	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/document"
	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/features/docstore/inmem"
	mongostore "github.com/ragline/ragline/features/docstore/mongo"
	"github.com/ragline/ragline/features/embedding/openai"
	qdrantstore "github.com/ragline/ragline/features/vectorstore/qdrant"
	"github.com/ragline/ragline/queue"
	"github.com/ragline/ragline/rag"
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

	store, closeStore, err := newDocumentStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(ctx)

	docs, err := document.New(document.Options{Store: store, ChunkSize: cfg.RAG.ChunkSize})
	if err != nil {
		return fmt.Errorf("create document service: %w", err)
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

	server, err := api.NewServer(api.Options{
		Queue:          producer,
		Documents:      docs,
		Search:         ragSvc,
		Version:        envOr("VERSION", "dev"),
		SearchLimit:    cfg.RAG.TopK,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		APIKey:         os.Getenv("API_KEY"),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	addr := net.JoinHostPort(envOr("SERVER_HOST", "0.0.0.0"), envOr("SERVER_PORT", "8080"))
	// log.HTTP seeds each request context with the logger so handler and
	// middleware log calls reach the configured sink.
	handler := log.HTTP(ctx)(server.Handler())
	httpServer := &http.Server{Addr: addr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "http server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Printf(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Printf(ctx, "exited")
	return nil
}

// newDocumentStore selects Mongo when MONGO_URL is set and falls back to the
// in-memory store otherwise.
func newDocumentStore(ctx context.Context) (domain.DocumentStore, func(context.Context), error) {
	mongoURL := os.Getenv("MONGO_URL")
	if mongoURL == "" {
		return inmem.New(), func(context.Context) {}, nil
	}
	client, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	store, err := mongostore.New(ctx, mongostore.Options{
		Client:   client,
		Database: envOr("MONGO_DATABASE", "ragline"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create mongo store: %w", err)
	}
	closer := func(ctx context.Context) {
		if err := client.Disconnect(ctx); err != nil {
			log.Error(ctx, err, log.KV{K: "op", V: "disconnect mongo"})
		}
	}
	return store, closer, nil
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
