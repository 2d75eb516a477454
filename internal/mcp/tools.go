package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/search"
)

const maxResultChars = 500

// tool pairs a tool definition with its handler. Handlers return the text shown to the client;
// an error becomes an error result, not an RPC error.
type tool struct {
	Tool
	call func(ctx context.Context, args json.RawMessage) (string, error)
}

// withArgs decodes the call arguments into A before invoking fn. Missing arguments leave A at
// its zero value.
func withArgs[A any](fn func(context.Context, A) (string, error)) func(context.Context, json.RawMessage) (string, error) {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}
		return fn(ctx, args)
	}
}

// SearchArgs are the arguments of chunkstore_search.
type SearchArgs struct {
	Query string `json:"query"`
	Table string `json:"table,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// IndexArgs are the arguments of chunkstore_index.
type IndexArgs struct {
	Path  string `json:"path,omitempty"`
	Table string `json:"table,omitempty"`
	Force bool   `json:"force,omitempty"`
}

func (s *Server) buildTools() []tool {
	return []tool{
		{
			Tool: Tool{
				Name:        "chunkstore_search",
				Description: "Hybrid search over indexed notes. Combines semantic similarity with keyword matches.",
				InputSchema: objectSchema(map[string]Property{
					"query": {Type: "string", Description: "What to look for, in natural language or keywords"},
					"table": {Type: "string", Description: "Table to search (default: all tables)"},
					"limit": {Type: "number", Description: "Maximum number of results to return", Default: s.cfg.Search.DefaultLimit},
				}, "query"),
			},
			call: withArgs(s.searchTool),
		},
		{
			Tool: Tool{
				Name:        "chunkstore_tables",
				Description: "List tables with their row counts and embedding widths.",
				InputSchema: objectSchema(nil),
			},
			call: withArgs(s.tablesTool),
		},
		{
			Tool: Tool{
				Name:        "chunkstore_index",
				Description: "Index a notes directory into a table. Unchanged files are skipped.",
				InputSchema: objectSchema(map[string]Property{
					"path":  {Type: "string", Description: "Directory to index", Default: "."},
					"table": {Type: "string", Description: "Table name (default: the directory name)"},
					"force": {Type: "boolean", Description: "Re-index files even if unchanged", Default: false},
				}),
			},
			call: withArgs(s.indexTool),
		},
	}
}

func objectSchema(props map[string]Property, required ...string) JSONSchema {
	return JSONSchema{Type: "object", Properties: props, Required: required}
}

func (s *Server) searchTool(ctx context.Context, args SearchArgs) (string, error) {
	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	results, err := s.searcher.Search(ctx, args.Query, search.SearchOptions{
		Table: args.Table,
		Limit: args.Limit,
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results:\n\n", len(results))
	for i, r := range results {
		var score float32
		if r.Score != nil {
			score = *r.Score
		}
		fmt.Fprintf(&sb, "[%d] %s/%s (score %.4f)\n%s\n\n", i+1, r.Table, r.FilePath, score, clip(r.Text, maxResultChars))
	}
	return sb.String(), nil
}

// clip shortens text to n runes.
func clip(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func (s *Server) tablesTool(ctx context.Context, _ struct{}) (string, error) {
	names, err := s.store.ListTables(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No tables.", nil
	}

	var sb strings.Builder
	for _, name := range names {
		stats, err := s.store.Stats(ctx, name)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s: %d chunks from %d files, embed_dim %d, text index %s\n",
			name, stats.RowCount, stats.FileCount, stats.EmbedDim, stats.TextIndex)
	}
	return sb.String(), nil
}

func (s *Server) indexTool(ctx context.Context, args IndexArgs) (string, error) {
	if args.Path == "" {
		args.Path = "."
	}
	dir, err := filepath.Abs(args.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	table := args.Table
	if table == "" {
		table = filepath.Base(dir)
	}

	err = s.indexer.Index(ctx, indexer.IndexOptions{Table: table, Path: dir, Force: args.Force})
	if err != nil {
		return "", fmt.Errorf("indexing failed: %w", err)
	}

	stats, err := s.store.Stats(ctx, table)
	if err != nil {
		// nothing indexable was found, so no table was created
		return fmt.Sprintf("Indexed %s into %s: no chunks", dir, table), nil
	}
	return fmt.Sprintf("Indexed %s into %s: %d files, %d chunks", dir, table, stats.FileCount, stats.RowCount), nil
}
