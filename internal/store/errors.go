package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrNotFound       = errors.New("table not found")
	ErrAlreadyExists  = errors.New("table already exists")
	ErrIndex          = errors.New("full-text index error")
	ErrStorageEngine  = errors.New("storage engine error")
)

// Error records the operation and table an error happened on.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("chunkstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chunkstore: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapError attaches op and table to err unless it already carries them.
func wrapError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}

// engineError classifies an opaque SQLite/sqlite-vec failure.
func engineError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageEngine, what, err)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func schemaMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}
