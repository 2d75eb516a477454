// Package commands is the operation surface the application calls into: one method per
// command, each returning a status message or a JSON payload. The store behind it is opened in
// the background; every command waits for that to finish first.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/store"
	"github.com/nickcecere/chunkstore/internal/ui"
)

// Commands holds the store handle shared by every command.
type Commands struct {
	ready chan struct{}
	store *store.SQLiteStore
	err   error

	storeOpts store.Options
	out       io.Writer
}

// Option configures Commands.
type Option func(*Commands)

// WithStoreOptions sets the query engine options.
func WithStoreOptions(opts store.Options) Option {
	return func(c *Commands) {
		c.storeOpts = opts
	}
}

// WithOutput sets where ViewTable prints. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Commands) {
		c.out = w
	}
}

// StoreOptions maps the search section of the configuration onto store options.
func StoreOptions(cfg *config.Config) store.Options {
	return store.Options{
		DefaultLimit:    cfg.Search.DefaultLimit,
		RRFK:            cfg.Search.RRFK,
		CandidateFactor: cfg.Search.CandidateFactor,
	}
}

// Open starts opening the store under appDataDir and returns without waiting for it.
func Open(ctx context.Context, appDataDir string, opts ...Option) (*Commands, error) {
	if appDataDir == "" || !utf8.ValidString(appDataDir) {
		return nil, &store.Error{
			Op:  "open",
			Err: fmt.Errorf("%w: app data dir %q is not a valid UTF-8 path", store.ErrInvalidInput, appDataDir),
		}
	}

	c := &Commands{
		ready:     make(chan struct{}),
		storeOpts: store.DefaultOptions(),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	root := filepath.Join(appDataDir, config.DatabaseDirName)
	go func() {
		defer close(c.ready)
		if err := ctx.Err(); err != nil {
			c.err = err
			return
		}
		c.store, c.err = store.NewSQLiteStore(root, c.storeOpts)
		if c.err == nil {
			log.Debug("Store ready", "root", root)
		}
	}()

	return c, nil
}

// Store waits for initialization and returns the shared store.
func (c *Commands) Store(ctx context.Context) (*store.SQLiteStore, error) {
	select {
	case <-c.ready:
		return c.store, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close waits for initialization and closes the store.
func (c *Commands) Close() error {
	<-c.ready
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// TableExists reports whether a table has been created.
func (c *Commands) TableExists(ctx context.Context, name string) (bool, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return false, err
	}
	return st.Exists(ctx, name)
}

// CreateEmptyTable creates a table with no rows.
func (c *Commands) CreateEmptyTable(ctx context.Context, name string, embedDim int32) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}
	log.Debug("Creating table", "table", name, "embed_dim", embedDim)
	if _, err := st.CreateEmpty(ctx, name, embedDim); err != nil {
		return "", err
	}
	return fmt.Sprintf("Table '%s' created successfully", name), nil
}

// InsertChunks appends chunks to a table, creating the table on first use.
func (c *Commands) InsertChunks(ctx context.Context, name string, chunks []store.Chunk, embedDim int32) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}
	n, err := st.Insert(ctx, name, chunks, embedDim)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully inserted %d chunks into table '%s'", n, name), nil
}

// Search runs a hybrid search and returns the hits as a JSON array. A nil limit uses the
// configured default.
func (c *Commands) Search(ctx context.Context, name, query string, queryVector []float32, limit *int) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}

	n := 0
	if limit != nil {
		if *limit < 0 {
			return "", &store.Error{Op: "search", Table: name, Err: fmt.Errorf("%w: negative limit %d", store.ErrInvalidInput, *limit)}
		}
		// the store reads 0 as its default; a zero limit still runs so the table and
		// vector are validated
		n = max(*limit, 1)
	}

	hits, err := st.Search(ctx, name, query, queryVector, n)
	if err != nil {
		return "", err
	}
	if limit != nil && len(hits) > *limit {
		hits = hits[:*limit]
	}
	if hits == nil {
		hits = []store.Chunk{}
	}

	data, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	return string(data), nil
}

// ViewTable prints up to limit rows to the console output. A limit <= 0 prints every row.
func (c *Commands) ViewTable(ctx context.Context, name string, limit int) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}

	log.Debug("Viewing table", "table", name, "limit", limit)
	rows, err := st.Scan(ctx, name, limit)
	if err != nil {
		return "", err
	}

	rendered, err := ui.RenderChunkTable(name, rows)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.out, rendered); err != nil {
		return "", fmt.Errorf("failed to print table: %w", err)
	}
	return fmt.Sprintf("Successfully viewed table with %d rows", len(rows)), nil
}

// DeleteChunks removes every row whose file_path equals filePath.
func (c *Commands) DeleteChunks(ctx context.Context, name, filePath string) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}
	n, err := st.DeleteByFilePath(ctx, name, filePath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted %d chunks from table '%s'", n, name), nil
}

// ListTables returns the table names, sorted.
func (c *Commands) ListTables(ctx context.Context) ([]string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.ListTables(ctx)
}

// DropTable deletes a table and its data.
func (c *Commands) DropTable(ctx context.Context, name string) (string, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return "", err
	}
	if err := st.DropTable(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Table '%s' dropped", name), nil
}

// TableStats returns row and file counts for a table.
func (c *Commands) TableStats(ctx context.Context, name string) (*store.TableStats, error) {
	st, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.Stats(ctx, name)
}
