package store

import (
	"fmt"
	"strings"
)

const currentSchemaVersion = 1

// Physical object names inside a table database.
const (
	metaTable   = "table_meta"
	rowsTable   = "chunks"
	vectorTable = "chunks_vec"
	textIndex   = "chunks_fts"
)

// Logical column names.
const (
	ColumnID             = "id"
	ColumnFilePath       = "file_path"
	ColumnSourceBlockIDs = "source_block_ids"
	ColumnText           = "text"
	ColumnEmbedding      = "embedding"
)

// DataType is the logical type of a column.
type DataType int

const (
	TypeInt32 DataType = iota
	TypeUtf8
	TypeUtf8List
	TypeFloat32Vector
)

func (t DataType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeUtf8:
		return "utf8"
	case TypeUtf8List:
		return "list<utf8>"
	case TypeFloat32Vector:
		return "fixed_size_list<float32>"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// Field is one column of a chunk table.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	// Size is the fixed width of a TypeFloat32Vector column.
	Size int
}

func (f Field) String() string {
	if f.Type == TypeFloat32Vector {
		return fmt.Sprintf("%s: fixed_size_list<float32, %d>", f.Name, f.Size)
	}
	return fmt.Sprintf("%s: %s", f.Name, f.Type)
}

// Schema is the fixed column layout of a chunk table.
type Schema struct {
	Fields   []Field
	EmbedDim int
}

// DefineSchema returns the chunk table layout for the given embedding width.
func DefineSchema(embedDim int32) (*Schema, error) {
	if embedDim <= 0 {
		return nil, invalidInput("embedding dimension must be positive, got %d", embedDim)
	}
	dim := int(embedDim)
	return &Schema{
		EmbedDim: dim,
		Fields: []Field{
			{Name: ColumnID, Type: TypeInt32},
			{Name: ColumnFilePath, Type: TypeUtf8},
			{Name: ColumnSourceBlockIDs, Type: TypeUtf8List},
			{Name: ColumnText, Type: TypeUtf8},
			{Name: ColumnEmbedding, Type: TypeFloat32Vector, Size: dim},
		},
	}, nil
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// statements renders the schema as DDL. Scalar and list fields become columns of the rows
// table; the vector field lives in a vec0 table keyed by the row's rowid.
func (s *Schema) statements() []string {
	var cols []string
	var stmts []string

	for _, f := range s.Fields {
		switch f.Type {
		case TypeInt32:
			cols = append(cols, fmt.Sprintf(
				"%s INTEGER NOT NULL UNIQUE CHECK (%s BETWEEN -2147483648 AND 2147483647)", f.Name, f.Name))
		case TypeUtf8:
			def := f.Name + " TEXT NOT NULL"
			if f.Name == ColumnFilePath {
				def += " CHECK (file_path <> '')"
			}
			cols = append(cols, def)
		case TypeUtf8List:
			// JSON array of strings
			cols = append(cols, fmt.Sprintf(
				"%s TEXT NOT NULL DEFAULT '[]' CHECK (json_valid(%s))", f.Name, f.Name))
		case TypeFloat32Vector:
			stmts = append(stmts, fmt.Sprintf(
				"CREATE VIRTUAL TABLE %s USING vec0(chunk_id INTEGER PRIMARY KEY, %s float[%d] distance_metric=cosine)",
				vectorTable, f.Name, f.Size))
		}
	}

	return append([]string{
		fmt.Sprintf("CREATE TABLE %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)", metaTable),
		fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", rowsTable, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("CREATE INDEX idx_%s_file_path ON %s(%s)", rowsTable, rowsTable, ColumnFilePath),
	}, stmts...)
}
