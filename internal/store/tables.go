package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const stagingPrefix = ".staging-"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Table is an open handle on one chunk table.
type Table struct {
	Name      string
	EmbedDim  int
	CreatedAt time.Time

	db *sql.DB

	// serializes lazy text index repair
	indexMu sync.Mutex

	// operations hold inUse for reading; shut takes it for writing before closing db
	inUse  sync.RWMutex
	closed error
}

// acquire pins the handle until release is called. A handle shut by a drop or by closing the
// store reports why.
func (t *Table) acquire() (release func(), err error) {
	t.inUse.RLock()
	if t.closed != nil {
		t.inUse.RUnlock()
		return nil, t.closed
	}
	return t.inUse.RUnlock, nil
}

// shut waits for pinned operations to finish and closes the database. Later acquires fail
// with reason.
func (t *Table) shut(reason error) error {
	t.inUse.Lock()
	defer t.inUse.Unlock()

	if t.closed != nil {
		return nil
	}
	t.closed = reason
	return t.db.Close()
}

// ValidateTableName reports whether name can be used as a table name.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return invalidInput("invalid table name %q", name)
	}
	return nil
}

func (s *SQLiteStore) tableDir(name string) string {
	return filepath.Join(s.root, name)
}

// Exists reports whether a table with the given name has been created.
func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	names, err := s.listTables()
	if err != nil {
		return false, wrapError("exists", name, err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ListTables returns the names of all published tables, sorted.
func (s *SQLiteStore) ListTables(ctx context.Context) ([]string, error) {
	names, err := s.listTables()
	return names, wrapError("list tables", "", err)
}

func (s *SQLiteStore) listTables() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, engineError("read database directory", err)
	}

	names := []string{}
	for _, e := range entries {
		// staging directories start with a dot and never validate
		if !e.IsDir() || ValidateTableName(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), dbFileName)); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// CreateEmpty creates a table with zero rows, its schema and its full-text index. The table
// only becomes visible once fully built; if it already exists the call fails with
// ErrAlreadyExists.
func (s *SQLiteStore) CreateEmpty(ctx context.Context, name string, embedDim int32) (*Table, error) {
	t, err := s.createEmpty(ctx, name, embedDim)
	return t, wrapError("create", name, err)
}

func (s *SQLiteStore) createEmpty(ctx context.Context, name string, embedDim int32) (*Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}
	schema, err := DefineSchema(embedDim)
	if err != nil {
		return nil, err
	}

	final := s.tableDir(name)
	if _, err := os.Stat(filepath.Join(final, dbFileName)); err == nil {
		return nil, ErrAlreadyExists
	}

	staging := filepath.Join(s.root, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0755); err != nil {
		return nil, engineError("create staging directory", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	if err := buildTable(ctx, filepath.Join(staging, dbFileName), schema); err != nil {
		return nil, err
	}

	if err := os.Rename(staging, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrAlreadyExists
		}
		return nil, engineError("publish table", err)
	}
	published = true

	log.Debug("Created table", "table", name, "embed_dim", embedDim)

	return s.open(ctx, name)
}

// buildTable writes the schema, metadata and text index into a fresh database file.
func buildTable(ctx context.Context, path string, schema *Schema) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if err := execAll(ctx, tx, schema.statements()...); err != nil {
			return err
		}
		meta := map[string]string{
			"embed_dim":      strconv.Itoa(schema.EmbedDim),
			"created_at":     time.Now().UTC().Format(time.RFC3339Nano),
			"schema":         schema.String(),
			"schema_version": strconv.Itoa(currentSchemaVersion),
		}
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx, "INSERT INTO table_meta (key, value) VALUES (?, ?)", k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return engineError("create schema", err)
	}

	if _, err := buildTextIndex(ctx, db); err != nil {
		return err
	}

	if err := db.Close(); err != nil {
		return engineError("close database", err)
	}
	return nil
}

// Open returns the handle of an existing table.
func (s *SQLiteStore) Open(ctx context.Context, name string) (*Table, error) {
	t, err := s.open(ctx, name)
	return t, wrapError("open", name, err)
}

func (s *SQLiteStore) open(ctx context.Context, name string) (*Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, engineError("open table", errors.New("store is closed"))
	}
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	path := filepath.Join(s.tableDir(name), dbFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, engineError("stat table", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	t := &Table{Name: name, db: db}
	if err := t.readMeta(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.tables[name] = t
	log.Debug("Opened table", "table", name, "embed_dim", t.EmbedDim)
	return t, nil
}

// use opens name and pins the handle against a concurrent drop until release is called.
// Callers must not reopen the table while holding it.
func (s *SQLiteStore) use(ctx context.Context, name string) (*Table, func(), error) {
	t, err := s.open(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	release, err := t.acquire()
	if err != nil {
		return nil, nil, err
	}
	return t, release, nil
}

func (t *Table) readMeta(ctx context.Context) error {
	rows, err := t.db.QueryContext(ctx, "SELECT key, value FROM table_meta")
	if err != nil {
		return engineError("read table metadata", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return engineError("read table metadata", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return engineError("read table metadata", err)
	}

	dim, err := strconv.Atoi(meta["embed_dim"])
	if err != nil || dim <= 0 {
		return engineError("read table metadata", errors.New("missing or invalid embed_dim"))
	}
	t.EmbedDim = dim
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	return nil
}

// DropTable closes and deletes a table with all its rows.
func (s *SQLiteStore) DropTable(ctx context.Context, name string) error {
	return wrapError("drop", name, s.dropTable(name))
}

func (s *SQLiteStore) dropTable(name string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		delete(s.tables, name)
		if err := t.shut(ErrNotFound); err != nil {
			log.Warn("Failed to close table before drop", "table", name, "err", err)
		}
	}

	dir := s.tableDir(name)
	if _, err := os.Stat(filepath.Join(dir, dbFileName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return engineError("stat table", err)
	}

	// Move aside first so the name disappears in one step.
	trash := filepath.Join(s.root, stagingPrefix+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		return engineError("drop table", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return engineError("drop table", err)
	}

	log.Debug("Dropped table", "table", name)
	return nil
}
