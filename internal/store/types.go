// Package store provides the chunk store: named tables of text passages indexed both by a dense
// embedding (sqlite-vec) and by their text (SQLite full-text search), queried with a single
// hybrid search.
package store

import "time"

// Chunk is a passage of text with its embedding and provenance.
// Score is only set on search results.
type Chunk struct {
	FilePath       string    `json:"file_path"`
	Text           string    `json:"text"`
	SourceBlockIDs []string  `json:"source_block_ids"`
	Embedding      []float32 `json:"embedding"`
	Score          *float32  `json:"score,omitempty"`
}

// TextIndexKind identifies the full-text module backing a table's text index.
type TextIndexKind string

const (
	TextIndexNone TextIndexKind = "none"
	TextIndexFTS5 TextIndexKind = "fts5"
	TextIndexFTS4 TextIndexKind = "fts4"
)

// TableStats contains statistics about a table.
type TableStats struct {
	Name      string        `json:"name"`
	EmbedDim  int           `json:"embed_dim"`
	RowCount  int           `json:"row_count"`
	FileCount int           `json:"file_count"`
	TextIndex TextIndexKind `json:"text_index"`
	CreatedAt time.Time     `json:"created_at"`
}

// Options tunes the hybrid query engine.
type Options struct {
	// DefaultLimit is used when a search passes a limit <= 0.
	DefaultLimit int

	// RRFK is the rank constant of reciprocal rank fusion.
	RRFK float64

	// CandidateFactor multiplies the limit to get the depth of each retrieval leg.
	CandidateFactor int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:    10,
		RRFK:            60,
		CandidateFactor: 4,
	}
}
