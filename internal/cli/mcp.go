package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/mcp"
	"github.com/nickcecere/chunkstore/internal/watcher"
)

var (
	mcpWatch      string
	mcpWatchTable string
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server for integration with AI agents.

The server communicates via stdin/stdout using JSON-RPC 2.0 and provides tools for:
  - chunkstore_search: Hybrid search over one or all tables
  - chunkstore_tables: List tables with their statistics
  - chunkstore_index:  Index a notes directory into a table

With --watch the server also keeps the given vault's table up to date in the
background.

This command is typically invoked by an agent and not run directly by users.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpWatch, "watch", "", "vault directory to watch in the background")
	mcpCmd.Flags().StringVar(&mcpWatchTable, "watch-table", "", "table for the watched vault (defaults to directory name)")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr
	log.SetOutput(os.Stderr)

	cfg := config.Get()

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

	server := mcp.NewServer(st, emb, cfg)

	if mcpWatch != "" {
		absPath, err := resolveDir(mcpWatch)
		if err != nil {
			return err
		}
		table := mcpWatchTable
		if table == "" {
			table = filepath.Base(absPath)
		}
		go startBackgroundWatcher(ctx, server.Indexer(), cfg, absPath, table)
	}

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// startBackgroundWatcher syncs the vault once and then watches it until ctx is cancelled.
func startBackgroundWatcher(ctx context.Context, idx *indexer.Indexer, cfg *config.Config, absPath, table string) {
	// Let the server answer initialize before the first sync competes for the embedder
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	log.Info("Starting background sync", "path", absPath, "table", table)

	opts := indexer.DefaultIndexOptions()
	opts.Table = table
	opts.Path = absPath
	if err := idx.Index(ctx, opts); err != nil {
		if ctx.Err() == nil {
			log.Error("Background sync failed", "error", err)
		}
		return
	}

	w, err := watcher.New(
		absPath,
		table,
		idx,
		cfg,
		watcher.WithDebounceTime(1*time.Second),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("Background watcher event", "event", event, "path", path)
		}),
	)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
