package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/fs"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/ui"
)

var (
	indexForce      bool
	indexDryRun     bool
	indexTable      string
	indexExtensions []string
	indexIgnore     []string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a notes vault into a table",
	Long: `Index the notes in a directory (or the current directory) into a table.

This command will:
1. Discover the note files in the directory
2. Split each note into blocks and group the blocks into chunks by heading
3. Generate an embedding for each chunk
4. Replace the file's rows in the table

Files whose content has not changed since the last run are skipped, and files
that were removed from the directory have their rows deleted.

Examples:
  # Index current directory into a table named after it
  chunkstore index

  # Index a vault into a named table
  chunkstore index ~/notes --table notes

  # Re-index everything
  chunkstore index --force

  # Preview what would be indexed
  chunkstore index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "force re-index all files")
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without indexing")
	indexCmd.Flags().StringVarP(&indexTable, "table", "t", "", "table name (defaults to directory name)")
	indexCmd.Flags().StringSliceVarP(&indexExtensions, "ext", "e", nil, "file extensions to include (e.g., .md, .txt)")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

// resolveDir returns the absolute form of path after checking it is a directory.
func resolveDir(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %s", absPath)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}
	return absPath, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := resolveDir(path)
	if err != nil {
		return err
	}

	cfg := config.Get()
	out := cmd.OutOrStdout()

	table := indexTable
	if table == "" {
		table = filepath.Base(absPath)
	}

	log.Debug("Starting index",
		"path", absPath,
		"table", table,
		"force", indexForce,
		"dry-run", indexDryRun,
	)

	if indexDryRun {
		return runDryRun(out, absPath, cfg)
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmds, err := openCommands(ctx, cfg)
	if err != nil {
		return err
	}
	defer cmds.Close()

	st, err := cmds.Store(ctx)
	if err != nil {
		return err
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	idx := indexer.New(st, emb, cfg)

	fmt.Fprintln(out, ui.Header.Render("Indexing "+table))
	fmt.Fprintf(out, "Path: %s\n", absPath)
	fmt.Fprintf(out, "Provider: %s (%s)\n", emb.Provider(), emb.ModelName())
	fmt.Fprintln(out)

	startTime := time.Now()
	lastUpdate := time.Now()

	opts := indexer.DefaultIndexOptions()
	opts.Table = table
	opts.Path = absPath
	opts.Extensions = indexExtensions
	opts.IgnorePatterns = indexIgnore
	opts.Force = indexForce
	if cfg.Indexing.BatchSize > 0 {
		opts.BatchSize = cfg.Indexing.BatchSize
	}
	opts.OnProgress = func(p indexer.Progress) {
		// Throttle updates to every 100ms
		if time.Since(lastUpdate) < 100*time.Millisecond {
			return
		}
		lastUpdate = time.Now()

		fmt.Fprint(out, "\r\033[K")
		if p.TotalFiles > 0 {
			pct := float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
			fmt.Fprintf(out, "Progress: %d/%d files (%.0f%%) | Chunks: %d | %s",
				p.ProcessedFiles, p.TotalFiles, pct, p.ProcessedChunks,
				truncatePath(p.CurrentFile, 40))
		}
	}

	err = idx.Index(ctx, opts)
	fmt.Fprint(out, "\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	p := idx.Progress()
	duration := time.Since(startTime).Round(time.Millisecond)
	stats, err := idx.Stats(ctx, table)
	if err != nil {
		log.Warn("Failed to get stats", "error", err)
		return nil
	}

	fmt.Fprintln(out, ui.Success.Render("Indexing complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Files:    %d (%d updated, %d unchanged, %d removed)\n",
		stats.FileCount, p.ProcessedFiles, p.SkippedFiles, p.RemovedFiles)
	fmt.Fprintf(out, "  Chunks:   %d\n", stats.RowCount)
	if p.Errors > 0 {
		fmt.Fprintf(out, "  Errors:   %s\n", ui.Warning.Render(fmt.Sprintf("%d files failed", p.Errors)))
	}
	fmt.Fprintf(out, "  Duration: %s\n", duration)
	return nil
}

// runDryRun shows what would be indexed without actually indexing.
func runDryRun(w io.Writer, path string, cfg *config.Config) error {
	fmt.Fprintln(w, ui.Header.Render("Dry Run - Preview"))
	fmt.Fprintf(w, "Path: %s\n\n", path)

	extensions := indexExtensions
	if len(extensions) == 0 {
		extensions = cfg.Indexing.Extensions
	}

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           path,
		MaxFileSize:    int64(cfg.Indexing.MaxFileSize),
		MaxFileCount:   cfg.Indexing.MaxFileCount,
		IgnorePatterns: append(append([]string{}, cfg.Ignore...), indexIgnore...),
		UseGitignore:   true,
		Extensions:     extensions,
	})
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	err = walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	stats := walker.Stats()

	byExt := make(map[string]int)
	var totalSize int64
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.RelPath))
		if ext == "" {
			ext = "other"
		}
		byExt[ext]++
		totalSize += f.Size
	}
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	fmt.Fprintln(w, "Files to index:")
	for _, ext := range exts {
		fmt.Fprintf(w, "  %-15s %d\n", ext+":", byExt[ext])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total files:   %d\n", len(files))
	fmt.Fprintf(w, "Total size:    %s\n", formatBytes(totalSize))
	fmt.Fprintf(w, "Skipped:       %d files, %d directories\n", stats.FilesSkipped, stats.DirsSkipped)

	if len(files) > 0 {
		fmt.Fprintln(w, "\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Fprintf(w, "  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Fprintf(w, "  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}

	return nil
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
