package store

import (
	"context"
	"database/sql"

	"github.com/charmbracelet/log"
)

// DeleteByFilePath removes every row whose file_path equals filePath, together with its vector
// and text index entries, in one transaction. It returns the number of rows removed.
func (s *SQLiteStore) DeleteByFilePath(ctx context.Context, name, filePath string) (int, error) {
	n, err := s.deleteByFilePath(ctx, name, filePath)
	return n, wrapError("delete", name, err)
}

func (s *SQLiteStore) deleteByFilePath(ctx context.Context, name, filePath string) (int, error) {
	if filePath == "" {
		return 0, invalidInput("file_path is empty")
	}
	t, release, err := s.use(ctx, name)
	if err != nil {
		return 0, err
	}
	defer release()

	var deleted int64
	err = withTx(ctx, t.db, func(tx *sql.Tx) error {
		deleted, err = deleteFileRows(ctx, tx, filePath)
		return err
	})
	if err != nil {
		return 0, engineError("delete rows", err)
	}

	log.Debug("Deleted chunks", "table", name, "file", filePath, "rows", deleted)
	return int(deleted), nil
}

// deleteFileRows removes a file's rows and their vectors inside tx. Text index rows follow
// through triggers.
func deleteFileRows(ctx context.Context, tx *sql.Tx, filePath string) (int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT rowid FROM chunks WHERE file_path = ?", filePath)
	if err != nil {
		return 0, err
	}
	rowids, err := scanRowids(rows, "select rows")
	if err != nil {
		return 0, err
	}

	for _, rowid := range rowids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_vec WHERE chunk_id = ?", rowid); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_path = ?", filePath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Scan returns up to limit rows in insertion order, without scores. A limit <= 0 returns every
// row.
func (s *SQLiteStore) Scan(ctx context.Context, name string, limit int) ([]Chunk, error) {
	res, err := s.scan(ctx, name, limit)
	return res, wrapError("scan", name, err)
}

func (s *SQLiteStore) scan(ctx context.Context, name string, limit int) ([]Chunk, error) {
	t, release, err := s.use(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()
	if limit <= 0 {
		limit = -1
	}

	rows, err := t.db.QueryContext(ctx, selectChunks+" ORDER BY c.rowid LIMIT ?", limit)
	if err != nil {
		return nil, engineError("scan rows", err)
	}
	byRowid, order, err := decodeRows(rows, t.EmbedDim)
	if err != nil {
		return nil, err
	}

	out := make([]Chunk, 0, len(order))
	for _, rowid := range order {
		out = append(out, byRowid[rowid])
	}
	return out, nil
}

// Stats returns row and file counts and metadata of a table.
func (s *SQLiteStore) Stats(ctx context.Context, name string) (*TableStats, error) {
	st, err := s.stats(ctx, name)
	return st, wrapError("stats", name, err)
}

func (s *SQLiteStore) stats(ctx context.Context, name string) (*TableStats, error) {
	t, release, err := s.use(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	st := &TableStats{
		Name:      t.Name,
		EmbedDim:  t.EmbedDim,
		CreatedAt: t.CreatedAt,
	}
	err = t.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT file_path) FROM chunks",
	).Scan(&st.RowCount, &st.FileCount)
	if err != nil {
		return nil, engineError("count rows", err)
	}

	if st.TextIndex, err = hasTextIndex(ctx, t.db); err != nil {
		return nil, err
	}
	return st, nil
}
