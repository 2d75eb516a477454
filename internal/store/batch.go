package store

import (
	"context"
	"database/sql"
)

// Batch is the columnar form of a set of chunks, in input order. Embeddings are stored as one
// flat buffer of Len()*Dim values.
type Batch struct {
	Dim            int
	IDs            []int32
	FilePaths      []string
	SourceBlockIDs []string // JSON arrays
	Texts          []string
	Embeddings     []float32
}

// NewBatch materializes chunks into columns. Embedding lengths must already be validated
// against dim.
func NewBatch(chunks []Chunk, dim int) (*Batch, error) {
	b := &Batch{
		Dim:            dim,
		IDs:            make([]int32, len(chunks)),
		FilePaths:      make([]string, len(chunks)),
		SourceBlockIDs: make([]string, len(chunks)),
		Texts:          make([]string, len(chunks)),
		Embeddings:     make([]float32, 0, len(chunks)*dim),
	}
	for i, c := range chunks {
		ids, err := encodeBlockIDs(c.SourceBlockIDs)
		if err != nil {
			return nil, invalidInput("chunk %d: %v", i, err)
		}
		b.FilePaths[i] = c.FilePath
		b.SourceBlockIDs[i] = ids
		b.Texts[i] = c.Text
		b.Embeddings = append(b.Embeddings, c.Embedding...)
	}
	return b, nil
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	return len(b.Texts)
}

// Vector returns the embedding of row i.
func (b *Batch) Vector(i int) []float32 {
	return b.Embeddings[i*b.Dim : (i+1)*b.Dim]
}

// appendTo writes the rows and their vectors. The text index follows through triggers.
func (b *Batch) appendTo(ctx context.Context, tx *sql.Tx) error {
	rowStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, file_path, source_block_ids, text) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer rowStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer vecStmt.Close()

	for i := 0; i < b.Len(); i++ {
		res, err := rowStmt.ExecContext(ctx, b.IDs[i], b.FilePaths[i], b.SourceBlockIDs[i], b.Texts[i])
		if err != nil {
			return err
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := vecStmt.ExecContext(ctx, rowid, serializeEmbedding(b.Vector(i))); err != nil {
			return err
		}
	}
	return nil
}
