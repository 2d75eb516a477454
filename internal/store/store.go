package store

import "context"

// Store defines the chunk store operations.
type Store interface {
	// Table management
	Exists(ctx context.Context, name string) (bool, error)
	ListTables(ctx context.Context) ([]string, error)
	CreateEmpty(ctx context.Context, name string, embedDim int32) (*Table, error)
	Open(ctx context.Context, name string) (*Table, error)
	DropTable(ctx context.Context, name string) error

	// Ingestion
	Insert(ctx context.Context, name string, chunks []Chunk, embedDim int32) (int, error)
	ReplaceFile(ctx context.Context, name, filePath string, chunks []Chunk, embedDim int32) (int, error)

	// Query
	Search(ctx context.Context, name, queryText string, queryVector []float32, limit int) ([]Chunk, error)

	// Maintenance
	DeleteByFilePath(ctx context.Context, name, filePath string) (int, error)
	Scan(ctx context.Context, name string, limit int) ([]Chunk, error)
	Stats(ctx context.Context, name string) (*TableStats, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
