package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaService embeds text with a local Ollama server.
type OllamaService struct {
	*model

	baseURL string
	client  *http.Client
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService returns a service for model served at baseURL. An empty baseURL means the
// default local server.
func NewOllamaService(baseURL, modelName string) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaService{
		model:   newModel(modelName, 768),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{s.forDocument(text)}))
}

func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{s.forQuery(text)}))
}

func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embed(ctx, s.forDocuments(texts))
}

func (s *OllamaService) Provider() Provider { return ProviderOllama }

func (s *OllamaService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from Ollama", "model", s.name, "count", len(texts))

	var resp ollamaEmbedResponse
	err := s.post(ctx, "/api/embed", ollamaEmbedRequest{Model: s.name, Input: texts, Truncate: true}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	s.observe(resp.Embeddings)
	return resp.Embeddings, nil
}

// post sends body as JSON to path and decodes the reply into out.
func (s *OllamaService) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
