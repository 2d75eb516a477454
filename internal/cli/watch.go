package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/ui"
	"github.com/nickcecere/chunkstore/internal/watcher"
)

var (
	watchNoInitial bool
	watchTable     string
	watchDebounce  time.Duration
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a vault and keep its table up to date",
	Long: `Watch a directory for note changes and re-index modified files.

This command first performs an initial index of the directory (unless --no-initial
is specified), then watches for changes and updates the table as they happen.
Deleted notes have their rows removed.

Examples:
  # Watch current directory
  chunkstore watch

  # Watch a vault into a named table
  chunkstore watch ~/notes --table notes

  # Skip initial sync (assumes already indexed)
  chunkstore watch --no-initial`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial index sync")
	watchCmd.Flags().StringVarP(&watchTable, "table", "t", "", "table name (defaults to directory name)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "wait this long after the last change before re-indexing")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
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

	table := watchTable
	if table == "" {
		table = filepath.Base(absPath)
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

	if !watchNoInitial {
		fmt.Fprintln(out, ui.Header.Render("Initial Index"))
		fmt.Fprintf(out, "Path: %s\n", absPath)
		fmt.Fprintf(out, "Provider: %s (%s)\n\n", emb.Provider(), emb.ModelName())

		opts := indexer.DefaultIndexOptions()
		opts.Table = table
		opts.Path = absPath
		if cfg.Indexing.BatchSize > 0 {
			opts.BatchSize = cfg.Indexing.BatchSize
		}

		err := withSpinner("Indexing files", func() error {
			return idx.Index(ctx, opts)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("initial index failed: %w", err)
		}

		if stats, err := idx.Stats(ctx, table); err == nil {
			fmt.Fprintf(out, "Initial index complete: %d files, %d chunks\n\n", stats.FileCount, stats.RowCount)
		}
	}

	w, err := watcher.New(
		absPath,
		table,
		idx,
		cfg,
		watcher.WithDebounceTime(watchDebounce),
		watcher.WithEventCallback(func(event, path string) {
			log.Info("Updated", "event", event, "path", path, "table", table)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Fprintln(out, ui.Header.Render("Watching for Changes"))
	fmt.Fprintf(out, "Directory: %s\n", absPath)
	fmt.Fprintf(out, "Table:     %s\n", ui.TableName.Render(table))
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
	fmt.Fprintln(out)

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
