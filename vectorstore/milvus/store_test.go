package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

func TestCollectionSchema(t *testing.T) {
	schema, err := collectionSchema("docs", []core.VectorConfig{
		{Name: "", Dim: 1536},
		{Name: "title_vector", Dim: 384, Format: core.VectorFormatDense},
	})
	require.NoError(t, err)

	assert.Equal(t, "docs", schema.CollectionName)
	require.Len(t, schema.Fields, 5)

	assert.Equal(t, fieldID, schema.Fields[0].Name)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeVarChar, schema.Fields[0].DataType)

	assert.Equal(t, fieldText, schema.Fields[1].Name)
	assert.Equal(t, fieldMetadata, schema.Fields[2].Name)
	assert.Equal(t, entity.FieldTypeJSON, schema.Fields[2].DataType)

	// Unnamed config falls back to the default vector field.
	assert.Equal(t, core.DefaultVectorField, schema.Fields[3].Name)
	assert.Equal(t, entity.FieldTypeFloatVector, schema.Fields[3].DataType)
	assert.Equal(t, "1536", schema.Fields[3].TypeParams["dim"])

	assert.Equal(t, "title_vector", schema.Fields[4].Name)
	assert.Equal(t, "384", schema.Fields[4].TypeParams["dim"])
}

func TestCollectionSchemaRejectsSparse(t *testing.T) {
	_, err := collectionSchema("docs", []core.VectorConfig{
		{Name: "sparse", Format: core.VectorFormatSparse},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrUnsupportedVectorFormat)
}

func TestCollectionSchemaRequiresVectors(t *testing.T) {
	_, err := collectionSchema("docs", nil)
	require.Error(t, err)
}

func TestInsertColumns(t *testing.T) {
	chunks := []core.Chunk{
		{
			ID:       "a",
			Text:     "alpha",
			Metadata: map[string]any{"source": "x"},
			Embeddings: []core.NamedVector{
				{Name: "vector", Values: []float32{0.1, 0.2}},
			},
		},
		{
			ID:   "b",
			Text: "beta",
			Embeddings: []core.NamedVector{
				{Name: "vector", Values: []float32{0.3, 0.4}},
			},
		},
	}

	columns, err := insertColumns(chunks)
	require.NoError(t, err)
	require.Len(t, columns, 4)

	ids, ok := columns[0].(*entity.ColumnVarChar)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ids.Data())

	texts, ok := columns[1].(*entity.ColumnVarChar)
	require.True(t, ok)
	assert.Equal(t, []string{"alpha", "beta"}, texts.Data())

	metas, ok := columns[2].(*entity.ColumnJSONBytes)
	require.True(t, ok)
	assert.JSONEq(t, `{"source":"x"}`, string(metas.Data()[0]))
	assert.JSONEq(t, `{}`, string(metas.Data()[1]))

	vectors, ok := columns[3].(*entity.ColumnFloatVector)
	require.True(t, ok)
	assert.Equal(t, "vector", vectors.Name())
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors.Data())
}

func TestInsertColumnsMissingNamedEmbedding(t *testing.T) {
	chunks := []core.Chunk{
		{
			ID:         "a",
			Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{0.1}}},
		},
		{
			ID:         "b",
			Embeddings: []core.NamedVector{{Name: "other", Values: []float32{0.2}}},
		},
	}

	_, err := insertColumns(chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chunk "b" missing embedding "vector"`)
}

func TestIDInExpr(t *testing.T) {
	expr := idInExpr([]string{"a", `b"quoted`})
	assert.Equal(t, `id in ["a", "b\"quoted"]`, expr)
}

func TestDecodeChunks(t *testing.T) {
	rs := client.ResultSet{
		entity.NewColumnVarChar(fieldID, []string{"a", "b"}),
		entity.NewColumnVarChar(fieldText, []string{"alpha", "beta"}),
		entity.NewColumnJSONBytes(fieldMetadata, [][]byte{
			[]byte(`{"source":"x"}`),
			[]byte(`{}`),
		}),
		entity.NewColumnFloatVector("vector", 2, [][]float32{{0.1, 0.2}, {0.3, 0.4}}),
	}

	chunks, err := decodeChunks(rs)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, "alpha", chunks[0].Text)
	assert.Equal(t, map[string]any{"source": "x"}, chunks[0].Metadata)
	values, ok := chunks[0].Embedding("vector")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, values)

	assert.Equal(t, "b", chunks[1].ID)
	assert.Empty(t, chunks[1].Metadata)
}
