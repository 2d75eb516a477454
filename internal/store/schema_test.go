package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineSchema(t *testing.T) {
	schema, err := DefineSchema(768)
	require.NoError(t, err)
	assert.Equal(t, 768, schema.EmbedDim)
	require.Len(t, schema.Fields, 5)

	emb, ok := schema.Field(ColumnEmbedding)
	require.True(t, ok)
	assert.Equal(t, TypeFloat32Vector, emb.Type)
	assert.Equal(t, 768, emb.Size)

	_, ok = schema.Field("missing")
	assert.False(t, ok)

	assert.Equal(t,
		"{id: int32, file_path: utf8, source_block_ids: list<utf8>, text: utf8, embedding: fixed_size_list<float32, 768>}",
		schema.String())

	stmts := schema.statements()
	assert.Contains(t, stmts[len(stmts)-1], "float[768] distance_metric=cosine")
}

func TestDefineSchemaRejectsNonPositive(t *testing.T) {
	for _, dim := range []int32{0, -1} {
		_, err := DefineSchema(dim)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestErrorWrapping(t *testing.T) {
	err := wrapError("insert", "docs", schemaMismatch("chunk %d is off", 3))
	assert.Equal(t, "chunkstore: insert docs: schema mismatch: chunk 3 is off", err.Error())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.False(t, errors.Is(err, ErrInvalidInput))

	// an already wrapped error keeps its first op
	again := wrapError("search", "other", err)
	assert.Same(t, err, again)

	assert.Nil(t, wrapError("insert", "docs", nil))
	assert.Equal(t, "chunkstore: list tables: table not found",
		wrapError("list tables", "", ErrNotFound).Error())
}
