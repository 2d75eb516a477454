package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

const (
	dbFileName  = "table.db"
	busyTimeout = 5000 // ms
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteStore implements the Store interface with one SQLite database per table.
type SQLiteStore struct {
	root string
	opts Options

	mu     sync.Mutex
	tables map[string]*Table
	closed bool

	// creates collapses concurrent first-inserts into the same new table
	creates singleflight.Group
}

// NewSQLiteStore creates a store rooted at the given directory. Zero fields in opts take their
// defaults.
func NewSQLiteStore(root string, opts Options) (*SQLiteStore, error) {
	if root == "" {
		return nil, wrapError("open store", "", invalidInput("database directory is empty"))
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, wrapError("open store", "", engineError("create database directory", err))
	}

	def := DefaultOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.RRFK <= 0 {
		opts.RRFK = def.RRFK
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = def.CandidateFactor
	}

	log.Debug("Opened chunk store", "root", root)

	return &SQLiteStore{
		root:   root,
		opts:   opts,
		tables: make(map[string]*Table),
	}, nil
}

// Root returns the database directory.
func (s *SQLiteStore) Root() string {
	return s.root
}

// Close closes every open table handle. The store must not be used afterwards.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, t := range s.tables {
		if err := t.shut(engineError("open table", errors.New("store is closed"))); err != nil && firstErr == nil {
			firstErr = wrapError("close", name, engineError("close database", err))
		}
		delete(s.tables, name)
	}
	s.closed = true
	return firstErr
}

// openDB opens a table database. Transactions begin IMMEDIATE so writers serialize on the
// database lock instead of failing on upgrade.
func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", path, busyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, engineError("open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, engineError("open database", err)
	}
	return db, nil
}

// withTx runs fn in one write transaction, committing on success and rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
