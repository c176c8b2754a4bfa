package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	mockembed "github.com/poiesic/maestro/embedders/mock"
	"github.com/poiesic/maestro/vectorstore"
	badgerstore "github.com/poiesic/maestro/vectorstore/badger"
)

func setupTestStore(t *testing.T, dim int) vectorstore.Store {
	t.Helper()

	store, err := badgerstore.New(
		badgerstore.WithInMemory(),
		badgerstore.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.CreateCollection(context.Background(), "docs", []core.VectorConfig{
		{Name: core.DefaultVectorField, Dim: dim},
	})
	require.NoError(t, err)

	return store
}

// seedChunks stores n chunks carrying stale zero vectors, as left behind by
// a previous embedding model.
func seedChunks(t *testing.T, store vectorstore.Store, texts []string, dim int) {
	t.Helper()

	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{
			ID:       fmt.Sprintf("chunk-%02d", i),
			Text:     text,
			Metadata: map[string]any{"position": i},
			Embeddings: []core.NamedVector{
				{Name: core.DefaultVectorField, Values: make([]float32, dim)},
			},
		}
	}
	require.NoError(t, store.Add(context.Background(), "docs", chunks))
}

func numberedTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("stored text %d", i)
	}
	return texts
}

func TestRun_ReembedsEveryChunk(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 8)
	seedChunks(t, store, numberedTexts(25), 8)

	var buf bytes.Buffer
	err := Run(ctx, store, "docs", mockembed.NewWithDim(8),
		WithBatchSize(4),
		WithPoolSize(1),
		WithProgress(&buf),
	)
	require.NoError(t, err)

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, chunks, 25)

	reference := mockembed.NewWithDim(8)
	for _, chunk := range chunks {
		vector, ok := chunk.Embedding(core.DefaultVectorField)
		require.True(t, ok, "chunk %s should have an embedding", chunk.ID)

		want, err := reference.EmbedOne(ctx, chunk.Text)
		require.NoError(t, err)
		assert.Equal(t, want, vector, "chunk %s should carry the vector of its own text", chunk.ID)
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reindex of 25 chunks")
	assert.Contains(t, output, "25/25", "should show completion")
	assert.Contains(t, output, "Reindex complete")
}

func TestRun_PreservesIDsTextAndMetadata(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)
	texts := numberedTexts(10)
	seedChunks(t, store, texts, 4)

	err := Run(ctx, store, "docs", mockembed.NewWithDim(4), WithPoolSize(1))
	require.NoError(t, err)

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, chunks, 10)

	seen := make(map[string]core.Chunk, len(chunks))
	for _, chunk := range chunks {
		seen[chunk.ID] = chunk
	}
	for i, text := range texts {
		id := fmt.Sprintf("chunk-%02d", i)
		chunk, ok := seen[id]
		require.True(t, ok, "chunk %s should still exist", id)
		assert.Equal(t, text, chunk.Text)
		assert.Equal(t, i, chunk.Metadata["position"])
	}
}

// lengthEmbedder encodes each text's length into the vector's first element,
// so misrouted vectors are detectable under concurrency.
type lengthEmbedder struct{ dim int }

func (e *lengthEmbedder) Embed(_ context.Context, texts []string, _ ...embedders.Option) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dim)
		v[0] = float32(len(text))
		vectors[i] = v
	}
	return vectors, nil
}

func (e *lengthEmbedder) EmbedOne(ctx context.Context, text string, opts ...embedders.Option) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text}, opts...)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *lengthEmbedder) Dim() int { return e.dim }

func TestRun_ConcurrentBatchesKeepAlignment(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)

	// Unique lengths make every chunk's expected vector distinct.
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	seedChunks(t, store, texts, 4)

	err := Run(ctx, store, "docs", &lengthEmbedder{dim: 4},
		WithBatchSize(3),
		WithPoolSize(4),
	)
	require.NoError(t, err)

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, chunks, 30)

	for _, chunk := range chunks {
		vector, ok := chunk.Embedding(core.DefaultVectorField)
		require.True(t, ok)
		assert.Equal(t, float32(len(chunk.Text)), vector[0],
			"chunk %s carries another text's vector", chunk.ID)
	}
}

func TestRun_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)

	embedder := mockembed.NewWithDim(4)
	var buf bytes.Buffer
	err := Run(ctx, store, "docs", embedder, WithProgress(&buf))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "0 chunks", "should report the empty collection")
	assert.Zero(t, embedder.CallCount(), "should not call the embedder")
}

func TestRun_VectorFieldOption(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)
	seedChunks(t, store, numberedTexts(3), 4)

	err := Run(ctx, store, "docs", mockembed.NewWithDim(4),
		WithPoolSize(1),
		WithVectorField("body_vector"),
	)
	require.NoError(t, err)

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	reference := mockembed.NewWithDim(4)
	for _, chunk := range chunks {
		vector, ok := chunk.Embedding("body_vector")
		require.True(t, ok, "chunk %s should have the named embedding", chunk.ID)

		want, err := reference.EmbedOne(ctx, chunk.Text)
		require.NoError(t, err)
		assert.Equal(t, want, vector)
	}
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)
	seedChunks(t, store, numberedTexts(2), 4)

	attempts := 0
	embedder := mockembed.NewWithDim(4)
	embedder.EmbedFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("temporary error")
		}
		vectors := make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = []float32{1, 0, 0, 0}
		}
		return vectors, nil
	}

	err := Run(ctx, store, "docs", embedder, WithConfig(&Config{
		BatchSize:  10,
		MaxRetries: 3,
		RetryDelay: 5 * time.Millisecond,
		PoolSize:   1,
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on the third attempt")

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	for _, chunk := range chunks {
		vector, ok := chunk.Embedding(core.DefaultVectorField)
		require.True(t, ok)
		assert.Equal(t, []float32{1, 0, 0, 0}, vector)
	}
}

func TestRun_EmbedderErrorNamesBatch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 4)
	seedChunks(t, store, numberedTexts(2), 4)

	embedder := mockembed.NewWithDim(4)
	embedder.EmbedFunc = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("persistent error")
	}

	err := Run(ctx, store, "docs", embedder, WithConfig(&Config{
		BatchSize:  10,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		PoolSize:   1,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 0")
	assert.Contains(t, err.Error(), "persistent error")
}

func TestNew_Validation(t *testing.T) {
	store := setupTestStore(t, 4)
	embedder := mockembed.NewWithDim(4)

	t.Run("nil store", func(t *testing.T) {
		_, err := New(nil, "docs", embedder)
		assert.Equal(t, ErrStoreRequired, err)
	})

	t.Run("empty collection", func(t *testing.T) {
		_, err := New(store, "", embedder)
		assert.Equal(t, ErrCollectionRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := New(store, "docs", nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Greater(t, config.BatchSize, 0, "batch size should be positive")
	assert.Greater(t, config.ReportInterval, 0, "report interval should be positive")
	assert.Greater(t, config.MaxRetries, 0, "max retries should be positive")
	assert.Greater(t, config.RetryDelay, time.Duration(0), "retry delay should be positive")
	assert.Greater(t, config.PoolSize, 0, "pool size should be positive")
	assert.Equal(t, core.DefaultVectorField, config.VectorField)
}
