package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunks(n, dim int, file string) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		emb := make([]float32, dim)
		emb[i%dim] = 1
		chunks[i] = Chunk{
			FilePath:       file,
			Text:           fmt.Sprintf("passage number %d", i),
			SourceBlockIDs: []string{fmt.Sprintf("b%d", i)},
			Embedding:      emb,
		}
	}
	return chunks
}

func TestInsertCreatesTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.Insert(ctx, "docs", makeChunks(3, 4, "a.md"), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	table, err := store.Open(ctx, "docs")
	require.NoError(t, err)
	first := table.CreatedAt

	// a second insert reuses the table
	n, err = store.Insert(ctx, "docs", makeChunks(2, 4, "b.md"), 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, tables)

	stats, err := store.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RowCount)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, first, stats.CreatedAt)
	assert.NotEqual(t, TextIndexNone, stats.TextIndex)
}

func TestInsertPreservesOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := makeChunks(5, 3, "a.md")
	second := makeChunks(4, 3, "b.md")
	second[2].SourceBlockIDs = nil

	_, err := store.Insert(ctx, "docs", first, 3)
	require.NoError(t, err)
	_, err = store.Insert(ctx, "docs", second, 3)
	require.NoError(t, err)

	rows, err := store.Scan(ctx, "docs", 0)
	require.NoError(t, err)
	require.Len(t, rows, 9)

	want := append(append([]Chunk{}, first...), second...)
	for i, row := range rows {
		assert.Equal(t, want[i].FilePath, row.FilePath, "row %d", i)
		assert.Equal(t, want[i].Text, row.Text, "row %d", i)
		assert.Equal(t, want[i].Embedding, row.Embedding, "row %d", i)
		assert.Nil(t, row.Score)
	}
	// empty lists come back empty, never nil
	assert.Equal(t, []string{}, rows[7].SourceBlockIDs)
	assert.Equal(t, []string{"b0"}, rows[5].SourceBlockIDs)

	limited, err := store.Scan(ctx, "docs", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestInsertDimensionMismatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{
		{FilePath: "a.md", Text: "ok", Embedding: []float32{1, 0, 0, 0}},
		{FilePath: "a.md", Text: "short", Embedding: []float32{1, 0}},
	}

	_, err := store.Insert(ctx, "docs", chunks, 4)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, "chunkstore: insert docs: schema mismatch: chunk 1 has embedding dimension 2, expected 4", err.Error())

	// validation runs before the table is created
	exists, err := store.Exists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertNothingWrittenOnMismatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateEmpty(ctx, "docs", 3)
	require.NoError(t, err)

	chunks := makeChunks(4, 3, "a.md")
	chunks[3].Embedding = []float32{1, 2, 3, 4}

	_, err = store.Insert(ctx, "docs", chunks, 3)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	rows, err := store.Scan(ctx, "docs", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertTableDimensionConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateEmpty(ctx, "docs", 3)
	require.NoError(t, err)

	_, err = store.Insert(ctx, "docs", makeChunks(1, 4, "a.md"), 4)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestInsertInvalidInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "docs", makeChunks(1, 2, "a.md"), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Insert(ctx, "bad/name", makeChunks(1, 2, "a.md"), 2)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Insert(ctx, "docs", makeChunks(1, 2, ""), 2)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsertEmptyBatchEnsuresTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.Insert(ctx, "docs", nil, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	table, err := store.Open(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 8, table.EmbedDim)
}

func TestConcurrentFirstInserts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Insert(ctx, "fresh", makeChunks(2, 3, fmt.Sprintf("f%d.md", i)), 3)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}

	tables, err := store.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, tables)

	stats, err := store.Stats(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, writers*2, stats.RowCount)
}

func TestInsertAssignsUniqueIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// identical chunks still get distinct ids
	chunks := make([]Chunk, 50)
	for i := range chunks {
		chunks[i] = Chunk{FilePath: "same.md", Text: "same text", Embedding: []float32{1, 0}}
	}
	_, err := store.Insert(ctx, "docs", chunks, 2)
	require.NoError(t, err)

	table, err := store.Open(ctx, "docs")
	require.NoError(t, err)

	var total, distinct int
	err = table.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT id) FROM chunks").Scan(&total, &distinct)
	require.NoError(t, err)
	assert.Equal(t, 50, total)
	assert.Equal(t, 50, distinct)
}

func TestDeriveID(t *testing.T) {
	now := time.Unix(1700000000, 123).UnixNano()

	a := deriveID("a.md", "text", now, 0, 0)
	assert.Equal(t, a, deriveID("a.md", "text", now, 0, 0))
	assert.NotEqual(t, a, deriveID("a.md", "text", now, 0, 1))
	assert.NotEqual(t, a, deriveID("a.md", "text", now, 1, 0))
	assert.NotEqual(t, a, deriveID("a.md", "text", now+1, 0, 0))

	// the separator keeps field boundaries significant
	assert.NotEqual(t, deriveID("ab", "c", now, 0, 0), deriveID("a", "bc", now, 0, 0))
}

func TestAssignIDsSkipsTakenIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table, err := store.CreateEmpty(ctx, "docs", 2)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	taken := deriveID("a.md", "hello", now.UnixNano(), 0, 0)
	_, err = table.db.Exec("INSERT INTO chunks (id, file_path, text) VALUES (?, 'other.md', 'x')", taken)
	require.NoError(t, err)

	batch, err := NewBatch([]Chunk{{FilePath: "a.md", Text: "hello", Embedding: []float32{1, 0}}}, 2)
	require.NoError(t, err)

	tx, err := table.db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, assignIDs(ctx, tx, batch, now))
	assert.Equal(t, deriveID("a.md", "hello", now.UnixNano(), 0, 1), batch.IDs[0])
}

func TestNewBatch(t *testing.T) {
	chunks := []Chunk{
		{FilePath: "a.md", Text: "one", SourceBlockIDs: []string{"x", "y"}, Embedding: []float32{1, 2}},
		{FilePath: "b.md", Text: "two", Embedding: []float32{3, 4}},
	}

	b, err := NewBatch(chunks, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []float32{1, 2, 3, 4}, b.Embeddings)
	assert.Equal(t, []float32{3, 4}, b.Vector(1))
	assert.Equal(t, []string{`["x","y"]`, `[]`}, b.SourceBlockIDs)
	assert.Equal(t, []string{"a.md", "b.md"}, b.FilePaths)
}
