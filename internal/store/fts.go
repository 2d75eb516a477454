package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
)

// textIndexDefinition describes how to build the text index with one SQLite full-text module.
type textIndexDefinition struct {
	kind  TextIndexKind
	stmts []string
}

// FTS5 is preferred. FTS4 ships with every go-sqlite3 build, FTS5 only with the
// sqlite_fts5 build tag.
var textIndexDefinitions = []textIndexDefinition{
	{
		kind: TextIndexFTS5,
		stmts: []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts5(text, content='chunks')`,
			`CREATE TRIGGER chunks_fts_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER chunks_fts_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			END`,
		},
	},
	{
		kind: TextIndexFTS4,
		stmts: []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts4(content="chunks", text)`,
			`CREATE TRIGGER chunks_fts_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(docid, text) VALUES (new.rowid, new.text);
			END`,
			// fts4 reads the old text from the content table, so this must run first
			`CREATE TRIGGER chunks_fts_bd BEFORE DELETE ON chunks BEGIN
				DELETE FROM chunks_fts WHERE docid = old.rowid;
			END`,
		},
	},
}

// buildTextIndex creates the full-text index over the text column, installs the triggers that
// keep it in sync and indexes the rows already present. It must be called at most once per
// table; callers check hasTextIndex first.
func buildTextIndex(ctx context.Context, db *sql.DB) (TextIndexKind, error) {
	log.Debug("Creating full-text index", "column", ColumnText)

	for _, def := range textIndexDefinitions {
		err := withTx(ctx, db, func(tx *sql.Tx) error {
			if err := execAll(ctx, tx, def.stmts...); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild')`)
			return err
		})
		if err == nil {
			log.Debug("Created full-text index", "module", def.kind)
			return def.kind, nil
		}
		if !isMissingModule(err) {
			return TextIndexNone, fmt.Errorf("%w: %s: %w", ErrIndex, def.kind, err)
		}
		log.Debug("Full-text module unavailable", "module", def.kind)
	}

	return TextIndexNone, fmt.Errorf("%w: no full-text module available in this SQLite build", ErrIndex)
}

// hasTextIndex reports which full-text index, if any, exists on the table.
func hasTextIndex(ctx context.Context, q queryer) (TextIndexKind, error) {
	var ddl string
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", textIndex,
	).Scan(&ddl)
	if err == sql.ErrNoRows {
		return TextIndexNone, nil
	}
	if err != nil {
		return TextIndexNone, engineError("inspect index catalog", err)
	}

	ddl = strings.ToLower(ddl)
	switch {
	case strings.Contains(ddl, "using fts5"):
		return TextIndexFTS5, nil
	case strings.Contains(ddl, "using fts4"):
		return TextIndexFTS4, nil
	default:
		return TextIndexNone, nil
	}
}

// textLegQuery returns the ranked match query for the given index kind. Results are the rowids
// of matching chunks, best first.
func textLegQuery(kind TextIndexKind) string {
	if kind == TextIndexFTS4 {
		// fts4 has no bm25; rank by how many term hits offsets() reports
		return `SELECT docid FROM chunks_fts WHERE chunks_fts MATCH ?
			ORDER BY length(offsets(chunks_fts)) DESC, docid LIMIT ?`
	}
	return `SELECT rowid FROM chunks_fts WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts), rowid LIMIT ?`
}

// matchExpression turns free text into a full-text query that matches any of its terms.
// Every term is quoted, so operator characters in user input are inert.
func matchExpression(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

func isMissingModule(err error) bool {
	return strings.Contains(err.Error(), "no such module")
}
