// Package openai provides a domain.EmbeddingService backed by the OpenAI
// embeddings API via github.com/openai/openai-go.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragline/ragline/domain"
)

type (
	// EmbeddingsClient captures the subset of the OpenAI SDK used by the
	// adapter. It is satisfied by *sdk.EmbeddingService so tests can swap in
	// a fake.
	EmbeddingsClient interface {
		New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error)
	}

	// Options configures the adapter.
	Options struct {
		// Model is the embedding model identifier, e.g. "text-embedding-3-small".
		Model string

		// Dimension is the vector length the model produces. Responses with a
		// different length are rejected.
		Dimension int
	}

	// Service implements domain.EmbeddingService on top of the OpenAI
	// embeddings endpoint.
	Service struct {
		emb       EmbeddingsClient
		model     string
		dimension int
	}
)

// New builds an embedding service from the provided embeddings client and
// options.
func New(emb EmbeddingsClient, opts Options) (*Service, error) {
	if emb == nil {
		return nil, errors.New("openai embeddings client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("embedding model identifier is required")
	}
	if opts.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	return &Service{emb: emb, model: opts.Model, dimension: opts.Dimension}, nil
}

// NewFromAPIKey constructs a service using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Embeddings, opts)
}

// Dimension reports the vector length this service produces.
func (s *Service) Dimension() int { return s.dimension }

// Embed returns the embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order. An empty
// batch returns an empty slice without calling the provider.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return []domain.Embedding{}, nil
	}
	resp, err := s.emb.New(ctx, sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: sdk.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, domain.WrapExternal("openai embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.Externalf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vecs := make([]domain.Embedding, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vecs) {
			return nil, domain.Externalf("openai embeddings: vector index %d out of range", d.Index)
		}
		vec, err := toEmbedding(d.Embedding, s.dimension)
		if err != nil {
			return nil, err
		}
		vecs[d.Index] = vec
	}
	return vecs, nil
}

func toEmbedding(raw []float64, dimension int) (domain.Embedding, error) {
	if len(raw) != dimension {
		return nil, domain.Externalf("openai embeddings: expected dimension %d, got %d", dimension, len(raw))
	}
	vec := make(domain.Embedding, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ domain.EmbeddingService = (*Service)(nil)
