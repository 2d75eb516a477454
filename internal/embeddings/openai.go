package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService embeds text with the OpenAI embeddings API or a compatible endpoint.
type OpenAIService struct {
	*model

	client openai.Client
	// shortened vectors are asked for when non-zero
	requested int
}

// NewOpenAIService returns a service for model. baseURL may point at any OpenAI compatible
// server; dimensions, when set, asks the model for shortened vectors.
func NewOpenAIService(apiKey, modelName, baseURL string, dimensions int) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	m := newModel(modelName, 1536)
	if dimensions > 0 {
		m.width.Store(int64(dimensions))
	}

	return &OpenAIService{
		model:     m,
		client:    openai.NewClient(opts...),
		requested: dimensions,
	}, nil
}

func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{text}))
}

// EmbedQuery is Embed: OpenAI models take no task prefix.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embed(ctx, texts)
}

func (s *OpenAIService) Provider() Provider { return ProviderOpenAI }

func (s *OpenAIService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", s.name, "count", len(texts))

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.name),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if s.requested > 0 {
		params.Dimensions = openai.Int(int64(s.requested))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	// data may arrive out of order; Index ties each vector to its input
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vecs) {
			continue
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vecs[d.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}

	s.observe(vecs)
	return vecs, nil
}
