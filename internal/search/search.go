// Package search runs hybrid searches from plain query text, embedding the query first.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/store"
)

// Searcher embeds query text and runs it against one or all tables.
type Searcher struct {
	store    store.Store
	embedder embeddings.Service
}

// Result is a search hit together with the table it came from.
type Result struct {
	Table string `json:"table"`
	store.Chunk
}

// SearchOptions configures the search.
type SearchOptions struct {
	// Table is the table to search. Empty searches every table.
	Table string

	// Limit is the maximum number of results. Non-positive uses the store default.
	Limit int

	// MinScore drops results with a lower fused score.
	MinScore float32
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 10,
	}
}

// New creates a new Searcher.
func New(st store.Store, emb embeddings.Service) *Searcher {
	return &Searcher{
		store:    st,
		embedder: emb,
	}
}

// Search embeds query and runs a hybrid search.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if opts.Table != "" {
		hits, err := s.store.Search(ctx, opts.Table, query, vector, opts.Limit)
		if err != nil {
			return nil, err
		}
		return filter(opts.Table, hits, opts.MinScore), nil
	}
	return s.searchAll(ctx, query, vector, opts)
}

// searchAll queries every table and merges the hits by score. Tables built with a different
// embedding width than the current model are skipped.
func (s *Searcher) searchAll(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]Result, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found")
	}

	var all []Result
	for _, name := range tables {
		hits, err := s.store.Search(ctx, name, query, vector, opts.Limit)
		if errors.Is(err, store.ErrSchemaMismatch) {
			log.Warn("Skipping table with a different embedding width", "table", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, filter(name, hits, opts.MinScore)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return score(all[i]) > score(all[j])
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchOptions().Limit
	}
	if len(all) > limit {
		all = all[:limit]
	}

	log.Debug("Search complete", "tables", len(tables), "results", len(all))
	return all, nil
}

func filter(table string, hits []store.Chunk, minScore float32) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{Table: table, Chunk: h}
		if score(r) < minScore {
			continue
		}
		results = append(results, r)
	}
	return results
}

func score(r Result) float32 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
