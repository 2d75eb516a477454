package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/chunkstore/internal/config"
)

// fakeOllama answers /api/embed with vectors of width dims whose values encode the input
// position, and records every request it sees.
type fakeOllama struct {
	*httptest.Server

	dims int

	mu       sync.Mutex
	requests []ollamaEmbedRequest
}

func newFakeOllama(t *testing.T, dims int) *fakeOllama {
	t.Helper()
	f := &fakeOllama{dims: dims}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ollamaEmbedRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = make([]float32, f.dims)
			for j := range vecs[i] {
				vecs[i][j] = float32(i+1) * 0.1
			}
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: vecs})
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) inputs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Input
	}
	return out
}

// replyWith serves a fixed status and body.
func replyWith(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestGetModelDimensions(t *testing.T) {
	for model, want := range map[string]int{
		"nomic-embed-text":       768,
		"mxbai-embed-large":      1024,
		"all-minilm":             384,
		"snowflake-arctic-embed": 1024,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"unknown-model":          0,
	} {
		assert.Equal(t, want, GetModelDimensions(model), model)
	}
}

func TestNewOllamaService(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		model   string
		wantURL string
		wantDim int
	}{
		{"default url", "", "nomic-embed-text", "http://localhost:11434", 768},
		{"trailing slash trimmed", "http://custom:8080/", "mxbai-embed-large", "http://custom:8080", 1024},
		{"unknown model", "", "custom-model", "http://localhost:11434", 768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewOllamaService(tt.baseURL, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, svc.baseURL)
			assert.Equal(t, tt.wantDim, svc.Dimensions())
			assert.Equal(t, tt.model, svc.ModelName())
			assert.Equal(t, ProviderOllama, svc.Provider())
		})
	}
}

func TestNewOpenAIService(t *testing.T) {
	_, err := NewOpenAIService("", "text-embedding-3-small", "", 0)
	assert.ErrorContains(t, err, "API key is required")

	tests := []struct {
		name          string
		model         string
		dims          int
		wantDim       int
		wantRequested int
	}{
		{"known model", "text-embedding-3-small", 0, 1536, 0},
		{"shortened vectors", "text-embedding-3-large", 512, 512, 512},
		{"unknown model", "custom-model", 0, 1536, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewOpenAIService("sk-test", tt.model, "", tt.dims)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDim, svc.Dimensions())
			assert.Equal(t, tt.wantRequested, svc.requested)
			assert.Equal(t, tt.model, svc.ModelName())
			assert.Equal(t, ProviderOpenAI, svc.Provider())
		})
	}
}

func TestTaskPrefixes(t *testing.T) {
	tests := []struct {
		model     string
		wantDoc   string
		wantQuery string
	}{
		{"nomic-embed-text", "search_document: text", "search_query: text"},
		{"mxbai-embed-large", "text", "Represent this sentence for searching relevant passages: text"},
		{"unknown-model", "text", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			srv := newFakeOllama(t, 4)
			svc, err := NewOllamaService(srv.URL, tt.model)
			require.NoError(t, err)

			_, err = svc.Embed(context.Background(), "text")
			require.NoError(t, err)
			_, err = svc.EmbedQuery(context.Background(), "text")
			require.NoError(t, err)
			_, err = svc.EmbedBatch(context.Background(), []string{"text"})
			require.NoError(t, err)

			assert.Equal(t, [][]string{{tt.wantDoc}, {tt.wantQuery}, {tt.wantDoc}}, srv.inputs())
		})
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := newFakeOllama(t, 768)
	svc, err := NewOllamaService(srv.URL, "nomic-embed-text")
	require.NoError(t, err)
	ctx := context.Background()

	vec, err := svc.Embed(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, vec, 768)
	assert.Equal(t, float32(0.1), vec[0])

	vec, err = svc.EmbedQuery(ctx, "query")
	require.NoError(t, err)
	assert.Len(t, vec, 768)

	vecs, err := svc.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Len(t, v, 768)
		assert.Equal(t, float32(i+1)*0.1, v[0])
	}

	vecs, err = svc.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    []string
	}{
		{"server error", replyWith(t, http.StatusInternalServerError, "model not found\n"), []string{"status 500", "model not found"}},
		{"unreachable", "http://localhost:99999", []string{"failed to make request"}},
		{"bad body", replyWith(t, http.StatusOK, "not json"), []string{"failed to decode response"}},
		{"count mismatch", replyWith(t, http.StatusOK, `{"embeddings": [[0.1]]}`), []string{"1 embeddings for 2 inputs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewOllamaService(tt.baseURL, "nomic-embed-text")
			require.NoError(t, err)

			_, err = svc.EmbedBatch(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestOllamaCancelledContext(t *testing.T) {
	srv := newFakeOllama(t, 4)
	svc, err := NewOllamaService(srv.URL, "nomic-embed-text")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.Embed(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDimensionsFollowResponses(t *testing.T) {
	srv := newFakeOllama(t, 512)
	svc, err := NewOllamaService(srv.URL, "nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, 768, svc.Dimensions())

	_, err = svc.Embed(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 512, svc.Dimensions())
}

func TestNewService(t *testing.T) {
	svc, err := NewService(&config.Config{Embeddings: config.EmbeddingsConfig{
		Provider: "ollama",
		Ollama:   config.OllamaEmbedConfig{URL: "http://localhost:11434", Model: "nomic-embed-text"},
	}})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, svc.Provider())
	assert.Equal(t, "nomic-embed-text", svc.ModelName())

	svc, err = NewService(&config.Config{Embeddings: config.EmbeddingsConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIEmbedConfig{APIKey: "sk-test", Model: "text-embedding-3-small"},
	}})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, svc.Provider())
	assert.Equal(t, "text-embedding-3-small", svc.ModelName())

	_, err = NewService(&config.Config{Embeddings: config.EmbeddingsConfig{Provider: "unsupported"}})
	assert.ErrorContains(t, err, "unsupported embedding provider")
}

func TestProbe(t *testing.T) {
	// the registry says 768; the probe reports what the model actually returns
	srv := newFakeOllama(t, 384)
	svc, err := NewOllamaService(srv.URL, "nomic-embed-text")
	require.NoError(t, err)

	dims, err := Probe(context.Background(), svc)
	require.NoError(t, err)
	assert.Equal(t, int32(384), dims)
	assert.Equal(t, 384, svc.Dimensions())

	svc, err = NewOllamaService(replyWith(t, http.StatusBadGateway, ""), "nomic-embed-text")
	require.NoError(t, err)
	_, err = Probe(context.Background(), svc)
	assert.ErrorContains(t, err, "probe embedding dimension")

	svc, err = NewOllamaService(newFakeOllama(t, 0).URL, "nomic-embed-text")
	require.NoError(t, err)
	_, err = Probe(context.Background(), svc)
	assert.ErrorContains(t, err, "empty vector")
}

func TestEmbedAll(t *testing.T) {
	srv := newFakeOllama(t, 8)
	svc, err := NewOllamaService(srv.URL, "all-minilm")
	require.NoError(t, err)

	vecs, err := EmbedAll(context.Background(), svc, []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, srv.inputs())

	vecs, err = EmbedAll(context.Background(), svc, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
