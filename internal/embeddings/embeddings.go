// Package embeddings turns text into the dense vectors stored alongside each chunk.
package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/chunkstore/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// probeText is embedded once to discover a model's output width.
const probeText = "dimension probe"

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width, as last observed from the model.
	Dimensions() int

	Provider() Provider
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch Provider(cfg.Embeddings.Provider) {
	case ProviderOllama:
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.Model,
		)
	case ProviderOpenAI:
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}

// Probe embeds a fixed string and returns the width of the result. Tables are created with
// this width, so it must come from the model rather than from the static table above.
func Probe(ctx context.Context, svc Service) (int32, error) {
	vec, err := svc.Embed(ctx, probeText)
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("failed to probe embedding dimension: model %s returned an empty vector", svc.ModelName())
	}
	log.Debug("Probed embedding dimension", "provider", svc.Provider(), "model", svc.ModelName(), "dimensions", len(vec))
	return int32(len(vec)), nil
}

// EmbedAll embeds texts in batches of at most batchSize and checks that every vector has the
// same width.
func EmbedAll(ctx context.Context, svc Service, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		vecs, err := svc.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}

	for i, v := range out {
		if len(v) == 0 || len(v) != len(out[0]) {
			return nil, fmt.Errorf("embedding %d has width %d, expected %d", i, len(v), len(out[0]))
		}
	}
	return out, nil
}
