package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/store"
)

// mockEmbedder implements embeddings.Service for testing.
type mockEmbedder struct {
	model      string
	dimensions int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int {
	return m.dimensions
}

func (m *mockEmbedder) Provider() embeddings.Provider {
	return embeddings.ProviderOllama
}

func (m *mockEmbedder) ModelName() string {
	return m.model
}

// generateEmbedding creates a deterministic embedding based on text.
func (m *mockEmbedder) generateEmbedding(text string) []float32 {
	emb := make([]float32, m.dimensions)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000003
	}
	for i := range emb {
		emb[i] = float32((hash+i)%100+1) / 100.0
	}
	return emb
}

var _ embeddings.Service = (*mockEmbedder)(nil)

func insertTexts(t *testing.T, st store.Store, emb *mockEmbedder, table string, texts ...string) {
	t.Helper()
	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{
			FilePath:       table + ".md",
			Text:           text,
			SourceBlockIDs: []string{"b"},
			Embedding:      emb.generateEmbedding(text),
		}
	}
	_, err := st.Insert(context.Background(), table, chunks, int32(emb.dimensions))
	require.NoError(t, err)
}

// createTestStore creates a store with two searchable tables and one built for another model.
func createTestStore(t *testing.T) (store.Store, *mockEmbedder) {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir(), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := &mockEmbedder{model: "test-model", dimensions: 16}
	insertTexts(t, st, emb, "notes",
		"Fixed the bicycle chain on Saturday",
		"Grocery list: apples, bread, coffee",
		"Reading notes on distributed systems",
	)
	insertTexts(t, st, emb, "journal",
		"Long walk by the river",
		"Planned the garden for spring",
	)

	legacy := &mockEmbedder{model: "old-model", dimensions: 4}
	insertTexts(t, st, legacy, "legacy", "written with an older model")

	return st, emb
}

func TestSearchTable(t *testing.T) {
	st, emb := createTestStore(t)
	searcher := New(st, emb)

	results, err := searcher.Search(context.Background(), "bicycle", SearchOptions{Table: "notes", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Fixed the bicycle chain on Saturday", results[0].Text)
	for _, r := range results {
		assert.Equal(t, "notes", r.Table)
		require.NotNil(t, r.Score)
		assert.Greater(t, *r.Score, float32(0))
		assert.Len(t, r.Embedding, 16)
	}
}

func TestSearchMissingTable(t *testing.T) {
	st, emb := createTestStore(t)

	_, err := New(st, emb).Search(context.Background(), "anything", SearchOptions{Table: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchEmptyQuery(t *testing.T) {
	st, emb := createTestStore(t)

	_, err := New(st, emb).Search(context.Background(), "", DefaultSearchOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query cannot be empty")
}

func TestSearchWithMinScore(t *testing.T) {
	st, emb := createTestStore(t)

	// fused scores never reach 1
	results, err := New(st, emb).Search(context.Background(), "bicycle", SearchOptions{Table: "notes", MinScore: 1})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchAllTables(t *testing.T) {
	st, emb := createTestStore(t)
	searcher := New(st, emb)

	results, err := searcher.Search(context.Background(), "garden", SearchOptions{Limit: 4})
	require.NoError(t, err)
	require.Len(t, results, 4)

	tables := map[string]bool{}
	for i, r := range results {
		tables[r.Table] = true
		assert.NotEqual(t, "legacy", r.Table, "tables of another width are skipped")
		if i > 0 {
			assert.GreaterOrEqual(t, *results[i-1].Score, *r.Score)
		}
	}
	assert.True(t, tables["journal"])
	assert.Equal(t, "Planned the garden for spring", results[0].Text)
}

func TestSearchAllNoTables(t *testing.T) {
	st, err := store.NewSQLiteStore(t.TempDir(), store.DefaultOptions())
	require.NoError(t, err)
	defer st.Close()

	_, err = New(st, &mockEmbedder{dimensions: 4}).Search(context.Background(), "q", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tables found")
}

func TestDefaultSearchOptions(t *testing.T) {
	opts := DefaultSearchOptions()
	assert.Equal(t, 10, opts.Limit)
	assert.Empty(t, opts.Table)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}
