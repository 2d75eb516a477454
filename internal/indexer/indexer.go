// Package indexer ingests a notes vault into a chunk store table.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/fs"
	"github.com/nickcecere/chunkstore/internal/store"
)

// Indexer walks a vault, chunks its notes, embeds the chunks and inserts them into a table.
type Indexer struct {
	store       store.Store
	embedder    embeddings.Service
	chunker     fs.Chunker
	cfg         *config.Config
	manifestDir string
	limiter     *rate.Limiter

	// runMu serializes runs so manifests are never written concurrently.
	runMu sync.Mutex

	// Progress tracking
	progress Progress
	dim      int32
	mu       sync.Mutex
}

// Progress tracks indexing progress.
type Progress struct {
	TotalFiles      int
	ProcessedFiles  int
	SkippedFiles    int
	RemovedFiles    int
	TotalChunks     int
	ProcessedChunks int
	Errors          int
	StartTime       time.Time
	CurrentFile     string
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// IndexOptions configures the indexing process.
type IndexOptions struct {
	// Table is the table to index into. Defaults to the base name of Path.
	Table string

	// Path is the vault directory to index.
	Path string

	// Extensions limits to specific file extensions. Defaults to the configured extensions.
	Extensions []string

	// IgnorePatterns are additional patterns to ignore.
	IgnorePatterns []string

	// Force re-indexes files even if unchanged.
	Force bool

	// BatchSize is the number of chunks to embed in a single request.
	BatchSize int

	// OnProgress is called to report progress.
	OnProgress ProgressFunc
}

// DefaultIndexOptions returns sensible defaults.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize: config.DefaultBatchSize,
	}
}

// New creates a new Indexer.
func New(st store.Store, emb embeddings.Service, cfg *config.Config) *Indexer {
	limit := rate.Inf
	if cfg.Indexing.FilesPerSecond > 0 {
		limit = rate.Limit(cfg.Indexing.FilesPerSecond)
	}
	return &Indexer{
		store:       st,
		embedder:    emb,
		chunker:     fs.NewMarkdownChunker(fs.ChunkOptions{MaxChars: cfg.Indexing.MaxChunkChars}),
		cfg:         cfg,
		manifestDir: cfg.ManifestDir(),
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Index indexes the vault at opts.Path into opts.Table. Unchanged files are skipped, changed
// files have their rows replaced and files that disappeared from the vault are deleted.
func (idx *Indexer) Index(ctx context.Context, opts IndexOptions) error {
	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	table := opts.Table
	if table == "" {
		table = filepath.Base(absPath)
	}
	if err := store.ValidateTableName(table); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	manifest, err := idx.loadManifest(ctx, table, absPath)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.progress = Progress{StartTime: time.Now()}
	idx.mu.Unlock()

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = idx.cfg.Indexing.Extensions
	}
	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           absPath,
		MaxFileSize:    int64(idx.cfg.Indexing.MaxFileSize),
		MaxFileCount:   idx.cfg.Indexing.MaxFileCount,
		IgnorePatterns: append(append([]string{}, idx.cfg.Ignore...), opts.IgnorePatterns...),
		UseGitignore:   true,
		Extensions:     extensions,
	})
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	if err := walker.Walk(func(fi fs.FileInfo) error {
		if !opts.Force && manifest.Unchanged(fi.RelPath, fi.Hash) {
			fi.Content = nil
		}
		files = append(files, fi)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	idx.mu.Lock()
	idx.progress.TotalFiles = len(files)
	idx.mu.Unlock()

	log.Info("Found files to index", "table", table, "count", len(files))

	seen := make(map[string]bool, len(files))
	for _, fi := range files {
		seen[fi.RelPath] = true

		if err := ctx.Err(); err != nil {
			return idx.finish(manifest, err)
		}

		idx.mu.Lock()
		idx.progress.CurrentFile = fi.RelPath
		idx.mu.Unlock()

		if !opts.Force && manifest.Unchanged(fi.RelPath, fi.Hash) {
			log.Debug("File unchanged, skipping", "path", fi.RelPath)
			idx.report(opts.OnProgress, func(p *Progress) { p.SkippedFiles++ })
			continue
		}

		if err := idx.limiter.Wait(ctx); err != nil {
			return idx.finish(manifest, err)
		}

		if err := idx.indexFile(ctx, table, manifest, fi, opts.BatchSize); err != nil {
			if ctx.Err() != nil {
				return idx.finish(manifest, ctx.Err())
			}
			log.Warn("Failed to index file", "path", fi.RelPath, "error", err)
			idx.report(opts.OnProgress, func(p *Progress) { p.Errors++ })
			continue
		}

		idx.report(opts.OnProgress, func(p *Progress) { p.ProcessedFiles++ })
	}

	for relPath := range manifest.Files {
		if seen[relPath] {
			continue
		}
		if err := idx.removeFile(ctx, table, manifest, relPath); err != nil {
			log.Warn("Failed to remove deleted file", "path", relPath, "error", err)
			idx.report(opts.OnProgress, func(p *Progress) { p.Errors++ })
			continue
		}
		idx.report(opts.OnProgress, func(p *Progress) { p.RemovedFiles++ })
	}

	if err := idx.finish(manifest, nil); err != nil {
		return err
	}

	if stats, err := idx.store.Stats(ctx, table); err == nil {
		log.Info("Indexing complete",
			"table", table,
			"files", stats.FileCount,
			"chunks", stats.RowCount,
			"duration", time.Since(idx.Progress().StartTime).Round(time.Millisecond),
		)
	}
	return nil
}

// loadManifest reads the table's manifest, discarding it when the table it describes is gone.
func (idx *Indexer) loadManifest(ctx context.Context, table, root string) (*Manifest, error) {
	manifest, err := LoadManifest(idx.manifestDir, table)
	if err != nil {
		return nil, err
	}

	exists, err := idx.store.Exists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists && len(manifest.Files) > 0 {
		log.Warn("Manifest refers to a missing table, starting over", "table", table)
		manifest.Files = make(map[string]ManifestEntry)
	}

	if manifest.Root != "" && manifest.Root != root {
		log.Warn("Vault path changed", "table", table, "stored", manifest.Root, "requested", root)
	}
	manifest.Root = root
	return manifest, nil
}

// finish saves the manifest and returns cause, or the save error if there is no cause.
func (idx *Indexer) finish(manifest *Manifest, cause error) error {
	if err := manifest.Save(); err != nil {
		if cause != nil {
			log.Warn("Failed to save manifest", "table", manifest.Table, "error", err)
			return cause
		}
		return err
	}
	return cause
}

func (idx *Indexer) report(fn ProgressFunc, update func(*Progress)) {
	idx.mu.Lock()
	update(&idx.progress)
	p := idx.progress
	idx.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

// embedDim probes the embedder once and caches the width for the indexer's lifetime.
func (idx *Indexer) embedDim(ctx context.Context) (int32, error) {
	idx.mu.Lock()
	dim := idx.dim
	idx.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	dim, err := embeddings.Probe(ctx, idx.embedder)
	if err != nil {
		return 0, err
	}

	idx.mu.Lock()
	idx.dim = dim
	idx.mu.Unlock()
	return dim, nil
}

// indexFile replaces the rows of a single file.
func (idx *Indexer) indexFile(ctx context.Context, table string, manifest *Manifest, fi fs.FileInfo, batchSize int) error {
	chunks := idx.chunker.Chunk(string(fi.Content), fi.RelPath)

	var rows []store.Chunk
	if len(chunks) > 0 {
		idx.mu.Lock()
		idx.progress.TotalChunks += len(chunks)
		idx.mu.Unlock()

		dim, err := idx.embedDim(ctx)
		if err != nil {
			return err
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		if batchSize <= 0 {
			batchSize = idx.cfg.Indexing.BatchSize
		}
		vectors, err := embeddings.EmbedAll(ctx, idx.embedder, texts, batchSize)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vectors[0]) != int(dim) {
			return fmt.Errorf("embedder returned width %d, table uses %d", len(vectors[0]), dim)
		}

		rows = make([]store.Chunk, len(chunks))
		for i, c := range chunks {
			rows[i] = store.Chunk{
				FilePath:       fi.RelPath,
				Text:           c.Text,
				SourceBlockIDs: c.BlockIDs,
				Embedding:      vectors[i],
			}
		}

		if _, err := idx.store.ReplaceFile(ctx, table, fi.RelPath, rows, dim); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
	} else if err := idx.deleteRows(ctx, table, fi.RelPath); err != nil {
		return err
	}

	manifest.Files[fi.RelPath] = ManifestEntry{
		Hash:    fi.Hash,
		ModTime: fi.ModTime,
		Chunks:  len(rows),
	}

	idx.mu.Lock()
	idx.progress.ProcessedChunks += len(rows)
	idx.mu.Unlock()

	log.Debug("Indexed file", "path", fi.RelPath, "chunks", len(rows))
	return nil
}

// deleteRows removes a file's rows. A table that does not exist yet has nothing to remove.
func (idx *Indexer) deleteRows(ctx context.Context, table, relPath string) error {
	n, err := idx.store.DeleteByFilePath(ctx, table, relPath)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if n > 0 {
		log.Debug("Deleted old chunks", "path", relPath, "rows", n)
	}
	return nil
}

func (idx *Indexer) removeFile(ctx context.Context, table string, manifest *Manifest, relPath string) error {
	if err := idx.deleteRows(ctx, table, relPath); err != nil {
		return err
	}
	delete(manifest.Files, relPath)
	log.Debug("Removed file", "path", relPath)
	return nil
}

// Progress returns the current indexing progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}

// relativePath resolves filePath against the vault root in the slash form used as file_path.
func relativePath(rootPath, filePath string) (string, error) {
	rel, err := filepath.Rel(rootPath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// IndexSingleFile re-indexes one file by its absolute path.
// This is used by the watcher for incremental updates.
func (idx *Indexer) IndexSingleFile(ctx context.Context, table, rootPath, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	relPath, err := relativePath(rootPath, filePath)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	fi := fs.FileInfo{
		Path:    filePath,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    fs.HashContent(content),
		Content: content,
	}

	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	manifest, err := idx.loadManifest(ctx, table, rootPath)
	if err != nil {
		return err
	}
	if manifest.Unchanged(relPath, fi.Hash) {
		return nil
	}
	if err := idx.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := idx.indexFile(ctx, table, manifest, fi, 0); err != nil {
		return err
	}
	return manifest.Save()
}

// DeleteFile removes a file's rows by its absolute path. When filePath was a directory, every
// indexed file below it is removed as well.
func (idx *Indexer) DeleteFile(ctx context.Context, table, rootPath, filePath string) error {
	relPath, err := relativePath(rootPath, filePath)
	if err != nil {
		return err
	}

	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	manifest, err := idx.loadManifest(ctx, table, rootPath)
	if err != nil {
		return err
	}

	paths := []string{relPath}
	for p := range manifest.Files {
		if strings.HasPrefix(p, relPath+"/") {
			paths = append(paths, p)
		}
	}
	for _, p := range paths {
		if err := idx.removeFile(ctx, table, manifest, p); err != nil {
			return idx.finish(manifest, err)
		}
	}
	return manifest.Save()
}

// Stats returns statistics for a table.
func (idx *Indexer) Stats(ctx context.Context, table string) (*store.TableStats, error) {
	return idx.store.Stats(ctx, table)
}
