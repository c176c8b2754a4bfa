package qdrant

import (
	"testing"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

func TestPointIDDeterministic(t *testing.T) {
	first := pointID("chunk-1")
	again := pointID("chunk-1")
	other := pointID("chunk-2")

	assert.Equal(t, first.GetUuid(), again.GetUuid())
	assert.NotEqual(t, first.GetUuid(), other.GetUuid())

	_, err := uuid.Parse(first.GetUuid())
	require.NoError(t, err)
}

func TestVectorParams(t *testing.T) {
	params, err := vectorParams("docs", []core.VectorConfig{
		{Name: "", Dim: 1536},
		{Name: "title_vector", Dim: 384},
	})
	require.NoError(t, err)
	require.Len(t, params, 2)

	assert.Equal(t, uint64(1536), params[core.DefaultVectorField].GetSize())
	assert.Equal(t, qdrantgo.Distance_Cosine, params[core.DefaultVectorField].GetDistance())
	assert.Equal(t, uint64(384), params["title_vector"].GetSize())
}

func TestVectorParamsRejectsSparse(t *testing.T) {
	_, err := vectorParams("docs", []core.VectorConfig{
		{Name: "sparse", Format: core.VectorFormatSparse},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrUnsupportedVectorFormat)
}

func TestVectorParamsRequiresVectors(t *testing.T) {
	_, err := vectorParams("docs", nil)
	require.Error(t, err)
}

func TestEncodePoint(t *testing.T) {
	point := encodePoint(core.Chunk{
		ID:       "c1",
		Text:     "hello",
		Metadata: map[string]any{"source": "x"},
		Embeddings: []core.NamedVector{
			{Name: "vector", Values: []float32{1, 2}},
		},
	})

	assert.Equal(t, pointID("c1").GetUuid(), point.GetId().GetUuid())
	assert.Equal(t, "c1", point.GetPayload()[payloadID].GetStringValue())
	assert.Equal(t, "hello", point.GetPayload()[payloadText].GetStringValue())

	meta := point.GetPayload()[payloadMetadata].GetStructValue()
	require.NotNil(t, meta)
	assert.Equal(t, "x", meta.GetFields()["source"].GetStringValue())

	named := point.GetVectors().GetVectors()
	require.NotNil(t, named)
	assert.Equal(t, []float32{1, 2}, named.GetVectors()["vector"].GetData())
}

func TestEncodePointEmptyMetadata(t *testing.T) {
	point := encodePoint(core.Chunk{
		ID:         "c2",
		Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1}}},
	})

	meta := point.GetPayload()[payloadMetadata].GetStructValue()
	require.NotNil(t, meta)
	assert.Empty(t, meta.GetFields())
}

func TestDecodePoint(t *testing.T) {
	payload := qdrantgo.NewValueMap(map[string]any{
		payloadID:       "c1",
		payloadText:     "hello",
		payloadMetadata: map[string]any{"source": "x", "page": float64(3)},
	})
	vectors := &qdrantgo.VectorsOutput{
		VectorsOptions: &qdrantgo.VectorsOutput_Vectors{
			Vectors: &qdrantgo.NamedVectorsOutput{
				Vectors: map[string]*qdrantgo.VectorOutput{
					"vector":       {Data: []float32{1, 2}},
					"title_vector": {Data: []float32{3, 4}},
				},
			},
		},
	}

	chunk := decodePoint(pointID("c1"), payload, vectors)

	assert.Equal(t, "c1", chunk.ID)
	assert.Equal(t, "hello", chunk.Text)
	assert.Equal(t, map[string]any{"source": "x", "page": float64(3)}, chunk.Metadata)

	values, ok := chunk.Embedding("vector")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, values)
	values, ok = chunk.Embedding("title_vector")
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, values)
}

func TestDecodePointFallsBackToPointUUID(t *testing.T) {
	id := pointID("orphan")
	chunk := decodePoint(id, map[string]*qdrantgo.Value{}, nil)

	assert.Equal(t, id.GetUuid(), chunk.ID)
	assert.Empty(t, chunk.Embeddings)
}

func TestWantsVectors(t *testing.T) {
	assert.False(t, wantsVectors(nil))
	assert.False(t, wantsVectors([]string{payloadID, payloadText, payloadMetadata}))
	assert.True(t, wantsVectors([]string{payloadText, "vector"}))
}

func TestPayloadValueRoundTrip(t *testing.T) {
	in := map[string]any{
		"source": "pisa.txt",
		"page":   float64(3),
		"draft":  true,
		"tags":   []any{"tower", "italy"},
		"nested": map[string]any{"depth": float64(1)},
	}

	out := fieldsToMap(qdrantgo.NewValueMap(in))

	assert.Equal(t, in, out)
}
