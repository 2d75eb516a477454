package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/store"
)

func openTestCommands(t *testing.T) (*Commands, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c, err := Open(context.Background(), t.TempDir(), WithOutput(&out))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, &out
}

func sampleChunks() []store.Chunk {
	return []store.Chunk{
		{FilePath: "a.md", Text: "alpha bravo", SourceBlockIDs: []string{"b1"}, Embedding: []float32{1, 0, 0}},
		{FilePath: "b.md", Text: "charlie delta", SourceBlockIDs: []string{}, Embedding: []float32{0, 1, 0}},
	}
}

func TestOpenRejectsInvalidDir(t *testing.T) {
	_, err := Open(context.Background(), "bad\xffdir")
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = Open(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestOpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := Open(ctx, t.TempDir())
	require.NoError(t, err)

	_, err = c.TableExists(context.Background(), "docs")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, c.Close())
}

func TestCommandsAwaitInitialization(t *testing.T) {
	c, _ := openTestCommands(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.TableExists(context.Background(), "docs")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCreateAndInsert(t *testing.T) {
	c, _ := openTestCommands(t)
	ctx := context.Background()

	msg, err := c.CreateEmptyTable(ctx, "docs", 3)
	require.NoError(t, err)
	assert.Equal(t, "Table 'docs' created successfully", msg)

	exists, err := c.TableExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.CreateEmptyTable(ctx, "docs", 3)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	msg, err = c.InsertChunks(ctx, "docs", sampleChunks(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Successfully inserted 2 chunks into table 'docs'", msg)

	_, err = c.InsertChunks(ctx, "docs", sampleChunks(), 4)
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)

	names, err := c.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
}

func TestSearchReturnsJSON(t *testing.T) {
	c, _ := openTestCommands(t)
	ctx := context.Background()

	_, err := c.InsertChunks(ctx, "docs", sampleChunks(), 3)
	require.NoError(t, err)

	raw, err := c.Search(ctx, "docs", "alpha", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	var hits []store.Chunk
	require.NoError(t, json.Unmarshal([]byte(raw), &hits))
	require.Len(t, hits, 2)
	assert.Equal(t, "a.md", hits[0].FilePath)
	assert.Equal(t, []float32{1, 0, 0}, hits[0].Embedding)
	assert.Equal(t, []string{"b1"}, hits[0].SourceBlockIDs)
	require.NotNil(t, hits[0].Score)
	assert.Equal(t, []string{}, hits[1].SourceBlockIDs)

	one := 1
	raw, err = c.Search(ctx, "docs", "alpha", []float32{1, 0, 0}, &one)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &hits))
	assert.Len(t, hits, 1)

	zero := 0
	raw, err = c.Search(ctx, "docs", "alpha", []float32{1, 0, 0}, &zero)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	_, err = c.Search(ctx, "missing", "alpha", []float32{1, 0, 0}, &zero)
	assert.ErrorIs(t, err, store.ErrNotFound)

	negative := -1
	_, err = c.Search(ctx, "docs", "alpha", []float32{1, 0, 0}, &negative)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = c.Search(ctx, "missing", "alpha", []float32{1, 0, 0}, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchEmptyTable(t *testing.T) {
	c, _ := openTestCommands(t)
	ctx := context.Background()

	_, err := c.CreateEmptyTable(ctx, "empty", 3)
	require.NoError(t, err)

	raw, err := c.Search(ctx, "empty", "anything", []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestViewTable(t *testing.T) {
	c, out := openTestCommands(t)
	ctx := context.Background()

	_, err := c.InsertChunks(ctx, "docs", sampleChunks(), 3)
	require.NoError(t, err)

	msg, err := c.ViewTable(ctx, "docs", 10)
	require.NoError(t, err)
	assert.Equal(t, "Successfully viewed table with 2 rows", msg)
	assert.NotEmpty(t, out.String())

	msg, err = c.ViewTable(ctx, "docs", 1)
	require.NoError(t, err)
	assert.Equal(t, "Successfully viewed table with 1 rows", msg)

	_, err = c.ViewTable(ctx, "missing", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteDropAndStats(t *testing.T) {
	c, _ := openTestCommands(t)
	ctx := context.Background()

	_, err := c.InsertChunks(ctx, "docs", sampleChunks(), 3)
	require.NoError(t, err)

	stats, err := c.TableStats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowCount)
	assert.Equal(t, 3, stats.EmbedDim)

	msg, err := c.DeleteChunks(ctx, "docs", "a.md")
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted 1 chunks from table 'docs'", msg)

	stats, err = c.TableStats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowCount)

	msg, err = c.DropTable(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "Table 'docs' dropped", msg)

	exists, err := c.TableExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.DefaultLimit = 3
	cfg.Search.RRFK = 20

	opts := StoreOptions(cfg)
	assert.Equal(t, 3, opts.DefaultLimit)
	assert.Equal(t, 20.0, opts.RRFK)
	assert.Equal(t, config.DefaultCandidateFactor, opts.CandidateFactor)
}
