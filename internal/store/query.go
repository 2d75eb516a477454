package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// maxCandidates is the largest k sqlite-vec accepts for a KNN query.
const maxCandidates = 4096

// Search runs a hybrid query: nearest neighbours of queryVector and full-text matches of
// queryText, fused into one ranking. Results are best first, at most limit long, with Score
// set. A limit <= 0 uses the configured default.
func (s *SQLiteStore) Search(ctx context.Context, name, queryText string, queryVector []float32, limit int) ([]Chunk, error) {
	res, err := s.search(ctx, name, queryText, queryVector, limit)
	return res, wrapError("search", name, err)
}

func (s *SQLiteStore) search(ctx context.Context, name, queryText string, queryVector []float32, limit int) ([]Chunk, error) {
	t, release, err := s.use(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()
	if len(queryVector) != t.EmbedDim {
		return nil, schemaMismatch("query vector has dimension %d, expected %d", len(queryVector), t.EmbedDim)
	}

	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	depth := maxCandidates
	if limit <= maxCandidates/s.opts.CandidateFactor {
		depth = limit * s.opts.CandidateFactor
	}

	kind := s.ensureTextIndex(ctx, t)
	match := matchExpression(queryText)

	var vectorRows, textRows []int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorRows, err = vectorLeg(gctx, t.db, queryVector, depth)
		return err
	})
	if kind != TextIndexNone && match != "" {
		g.Go(func() error {
			var err error
			textRows, err = textLeg(gctx, t.db, kind, match, depth)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := fuseRanks(s.opts.RRFK, limit, vectorRows, textRows)

	log.Debug("Hybrid search",
		"table", name,
		"vector_candidates", len(vectorRows),
		"text_candidates", len(textRows),
		"results", len(hits),
	)

	return fetchHits(ctx, t, hits)
}

// ensureTextIndex reports the table's text index, rebuilding it if it has gone missing. When
// no index can be had the text leg is skipped.
func (s *SQLiteStore) ensureTextIndex(ctx context.Context, t *Table) TextIndexKind {
	t.indexMu.Lock()
	defer t.indexMu.Unlock()

	kind, err := hasTextIndex(ctx, t.db)
	if err != nil {
		log.Warn("Could not inspect full-text index", "table", t.Name, "err", err)
		return TextIndexNone
	}
	if kind != TextIndexNone {
		log.Debug("Full-text index present", "table", t.Name, "module", kind)
		return kind
	}

	log.Warn("Full-text index missing, rebuilding", "table", t.Name)
	kind, err = buildTextIndex(ctx, t.db)
	if err != nil {
		log.Warn("Full-text index unavailable, keyword relevance disabled", "table", t.Name, "err", err)
		return TextIndexNone
	}
	return kind
}

func vectorLeg(ctx context.Context, db *sql.DB, queryVector []float32, k int) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT chunk_id FROM chunks_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serializeEmbedding(queryVector), k)
	if err != nil {
		return nil, engineError("vector search", err)
	}
	return scanRowids(rows, "vector search")
}

func textLeg(ctx context.Context, db *sql.DB, kind TextIndexKind, match string, k int) ([]int64, error) {
	rows, err := db.QueryContext(ctx, textLegQuery(kind), match, k)
	if err != nil {
		return nil, engineError("full-text search", err)
	}
	return scanRowids(rows, "full-text search")
}

func scanRowids(rows *sql.Rows, what string) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, engineError(what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, engineError(what, err)
	}
	return ids, nil
}

// fetchHits loads and decodes the hit rows, in hit order.
func fetchHits(ctx context.Context, t *Table, hits []fusedHit) ([]Chunk, error) {
	results := []Chunk{}
	if len(hits) == 0 {
		return results, nil
	}

	args := make([]any, len(hits))
	for i, h := range hits {
		args[i] = h.rowid
	}
	query := selectChunks + fmt.Sprintf(" WHERE c.rowid IN (%s)", strings.TrimSuffix(strings.Repeat("?,", len(hits)), ","))

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineError("fetch results", err)
	}
	byRowid, _, err := decodeRows(rows, t.EmbedDim)
	if err != nil {
		return nil, err
	}

	for _, h := range hits {
		c, ok := byRowid[h.rowid]
		if !ok {
			// deleted between ranking and fetch
			continue
		}
		score := float32(h.score)
		c.Score = &score
		results = append(results, c)
	}
	return results, nil
}

const selectChunks = `SELECT c.rowid, c.file_path, c.source_block_ids, c.text, v.embedding
	FROM chunks c JOIN chunks_vec v ON v.chunk_id = c.rowid`

// decodeRows turns result rows into chunks keyed by rowid, plus the rowids in row order. Any
// row that fails to decode fails the whole call.
func decodeRows(rows *sql.Rows, dim int) (map[int64]Chunk, []int64, error) {
	defer rows.Close()

	out := make(map[int64]Chunk)
	var order []int64
	for rows.Next() {
		var (
			rowid    int64
			c        Chunk
			blockIDs string
			blob     []byte
		)
		if err := rows.Scan(&rowid, &c.FilePath, &blockIDs, &c.Text, &blob); err != nil {
			return nil, nil, engineError("decode row", err)
		}

		var err error
		if c.SourceBlockIDs, err = decodeBlockIDs(blockIDs); err != nil {
			return nil, nil, engineError(fmt.Sprintf("decode row %d", rowid), err)
		}
		if c.Embedding, err = deserializeEmbedding(blob, dim); err != nil {
			return nil, nil, engineError(fmt.Sprintf("decode row %d", rowid), err)
		}

		out[rowid] = c
		order = append(order, rowid)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, engineError("decode rows", err)
	}
	return out, order, nil
}
