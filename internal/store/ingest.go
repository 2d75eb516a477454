package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
)

// Insert appends chunks to the named table, creating the table with embedDim first if it does
// not exist. The batch is validated as a whole before anything is written and is appended in
// one transaction. It returns the number of rows inserted.
func (s *SQLiteStore) Insert(ctx context.Context, name string, chunks []Chunk, embedDim int32) (int, error) {
	n, err := s.insert(ctx, name, chunks, embedDim)
	return n, wrapError("insert", name, err)
}

func (s *SQLiteStore) insert(ctx context.Context, name string, chunks []Chunk, embedDim int32) (int, error) {
	if err := validateBatch(name, chunks, embedDim); err != nil {
		return 0, err
	}

	t, err := s.ensureTable(ctx, name, embedDim)
	if err != nil {
		return 0, err
	}
	if t.EmbedDim != int(embedDim) {
		return 0, schemaMismatch("table has embedding dimension %d, insert declares %d", t.EmbedDim, embedDim)
	}

	if len(chunks) == 0 {
		return 0, nil
	}

	release, err := t.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	batch, err := NewBatch(chunks, t.EmbedDim)
	if err != nil {
		return 0, err
	}

	err = withTx(ctx, t.db, func(tx *sql.Tx) error {
		if err := assignIDs(ctx, tx, batch, time.Now()); err != nil {
			return err
		}
		return batch.appendTo(ctx, tx)
	})
	if err != nil {
		return 0, engineError("append batch", err)
	}

	log.Debug("Inserted chunks", "table", name, "rows", batch.Len())
	return batch.Len(), nil
}

// ReplaceFile swaps the rows of filePath for chunks in one transaction, creating the table
// with embedDim if needed. Every chunk must belong to filePath; an empty chunks removes the
// file. A failure leaves the old rows in place. It returns the number of rows inserted.
func (s *SQLiteStore) ReplaceFile(ctx context.Context, name, filePath string, chunks []Chunk, embedDim int32) (int, error) {
	n, err := s.replaceFile(ctx, name, filePath, chunks, embedDim)
	return n, wrapError("replace", name, err)
}

func (s *SQLiteStore) replaceFile(ctx context.Context, name, filePath string, chunks []Chunk, embedDim int32) (int, error) {
	if filePath == "" {
		return 0, invalidInput("file_path is empty")
	}
	if err := validateBatch(name, chunks, embedDim); err != nil {
		return 0, err
	}
	for i, c := range chunks {
		if c.FilePath != filePath {
			return 0, invalidInput("chunk %d belongs to %q, not %q", i, c.FilePath, filePath)
		}
	}

	t, err := s.ensureTable(ctx, name, embedDim)
	if err != nil {
		return 0, err
	}
	if t.EmbedDim != int(embedDim) {
		return 0, schemaMismatch("table has embedding dimension %d, replace declares %d", t.EmbedDim, embedDim)
	}

	release, err := t.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	batch, err := NewBatch(chunks, t.EmbedDim)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = withTx(ctx, t.db, func(tx *sql.Tx) error {
		if deleted, err = deleteFileRows(ctx, tx, filePath); err != nil {
			return err
		}
		if err := assignIDs(ctx, tx, batch, time.Now()); err != nil {
			return err
		}
		return batch.appendTo(ctx, tx)
	})
	if err != nil {
		return 0, engineError("replace rows", err)
	}

	log.Debug("Replaced chunks", "table", name, "file", filePath, "removed", deleted, "rows", batch.Len())
	return batch.Len(), nil
}

// validateBatch checks every argument before the table is touched. The first bad chunk aborts
// the whole batch.
func validateBatch(name string, chunks []Chunk, embedDim int32) error {
	if embedDim <= 0 {
		return invalidInput("embedding dimension must be positive, got %d", embedDim)
	}
	if err := ValidateTableName(name); err != nil {
		return err
	}
	for i, c := range chunks {
		if c.FilePath == "" {
			return invalidInput("chunk %d has an empty file_path", i)
		}
		if len(c.Embedding) != int(embedDim) {
			return schemaMismatch("chunk %d has embedding dimension %d, expected %d", i, len(c.Embedding), embedDim)
		}
	}
	return nil
}

// ensureTable opens the table, creating it if absent. Concurrent first-writers in this process
// share one creation; a creator in another process winning the race shows up as
// ErrAlreadyExists and the table is simply opened.
func (s *SQLiteStore) ensureTable(ctx context.Context, name string, embedDim int32) (*Table, error) {
	t, err := s.open(ctx, name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	v, err, shared := s.creates.Do(name, func() (any, error) {
		t, err := s.createEmpty(ctx, name, embedDim)
		if errors.Is(err, ErrAlreadyExists) {
			log.Debug("Table created concurrently", "table", name)
			return s.open(ctx, name)
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("Joined concurrent table creation", "table", name)
	}
	return v.(*Table), nil
}

// assignIDs derives a 32-bit id for every row. A candidate that collides with another row of
// the batch or of the table is re-derived with the next salt.
func assignIDs(ctx context.Context, tx *sql.Tx, b *Batch, now time.Time) error {
	taken, err := tx.PrepareContext(ctx, "SELECT 1 FROM chunks WHERE id = ?")
	if err != nil {
		return err
	}
	defer taken.Close()

	nanos := now.UnixNano()
	seen := make(map[int32]struct{}, b.Len())

	for i := 0; i < b.Len(); i++ {
		for salt := uint32(0); ; salt++ {
			id := deriveID(b.FilePaths[i], b.Texts[i], nanos, i, salt)
			if _, dup := seen[id]; dup {
				log.Debug("Chunk id collision within batch", "position", i, "salt", salt)
				continue
			}

			var one int
			err := taken.QueryRowContext(ctx, id).Scan(&one)
			if err == nil {
				log.Debug("Chunk id collision with table", "position", i, "salt", salt)
				continue
			}
			if err != sql.ErrNoRows {
				return err
			}

			seen[id] = struct{}{}
			b.IDs[i] = id
			break
		}
	}
	return nil
}

// deriveID hashes the row's content with its insertion time, batch position and salt and keeps
// the low 32 bits.
func deriveID(filePath, text string, nanos int64, position int, salt uint32) int32 {
	d := xxhash.New()
	d.WriteString(filePath)
	d.Write([]byte{0})
	d.WriteString(text)
	d.Write([]byte{0})

	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(nanos))
	binary.LittleEndian.PutUint64(buf[8:], uint64(position))
	binary.LittleEndian.PutUint32(buf[16:], salt)
	d.Write(buf[:])

	return int32(uint32(d.Sum64()))
}
