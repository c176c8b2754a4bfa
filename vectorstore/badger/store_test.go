package badger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

func newTestStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store, err := New(WithInMemory(), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCollection(t *testing.T, store vectorstore.Store, name string, dim int) {
	t.Helper()
	err := store.CreateCollection(context.Background(), name, []core.VectorConfig{
		{Name: core.DefaultVectorField, Dim: dim},
	})
	require.NoError(t, err)
}

func TestCreateCollectionIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	newTestCollection(t, store, "docs", 2)

	// Second creation warns and leaves the collection alone.
	err := store.CreateCollection(ctx, "docs", []core.VectorConfig{{Dim: 2}})
	require.NoError(t, err)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
}

func TestAddAndRetrieveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 2)

	stored := core.Chunk{
		ID:       "c1",
		Text:     "the leaning tower",
		Metadata: map[string]any{"source": "pisa.txt", "page": float64(3)},
		Embeddings: []core.NamedVector{
			{Name: "vector", Values: []float32{0.6, 0.8}},
			{Name: "title_vector", Values: []float32{1, 0}},
		},
	}
	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{stored}))

	chunks, err := store.Retrieve(ctx, "docs", []string{"c1", "missing"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	// Everything that went in comes back out.
	assert.Equal(t, stored.ID, chunks[0].ID)
	assert.Equal(t, stored.Text, chunks[0].Text)
	assert.Equal(t, stored.Metadata, chunks[0].Metadata)
	assert.Equal(t, stored.Embeddings, chunks[0].Embeddings)
}

func TestAddRequiresEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 2)

	err := store.Add(ctx, "docs", []core.Chunk{
		{ID: "ok", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1, 0}}}},
		{ID: "bare", Text: "no embedding"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrMissingEmbedding)

	// The batch fails before anything is written.
	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestAddGeneratesContentID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 2)

	err := store.Add(ctx, "docs", []core.Chunk{
		{Text: "anonymous", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1, 0}}}},
	})
	require.NoError(t, err)

	chunks, err := store.Retrieve(ctx, "docs", []string{core.HashID("anonymous")})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "anonymous", chunks[0].Text)
}

func TestSearchOrdersByCosine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 2)

	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{
		{ID: "east", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1, 0}}}},
		{ID: "north", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{0, 1}}}},
		{ID: "northeast", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1, 1}}}},
	}))

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "east", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "northeast", results[1].Chunk.ID)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchDefaultK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 1)

	var chunks []core.Chunk
	for i := 0; i < vectorstore.DefaultK+5; i++ {
		chunks = append(chunks, core.Chunk{
			Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{float32(i + 1)}}},
			Text:       string(rune('a' + i)),
		})
	}
	require.NoError(t, store.Add(ctx, "docs", chunks))

	results, err := store.Search(ctx, "docs", []float32{1}, 0)
	require.NoError(t, err)
	assert.Len(t, results, vectorstore.DefaultK)
}

func TestSearchUnknownCollection(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Search(context.Background(), "nope", []float32{1}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestSearchRejectsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 1)

	_, err := store.Search(ctx, "docs", []float32{1}, 5, vectorstore.WithFilter(`source == "x"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestSearchNamedVectorField(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	err := store.CreateCollection(ctx, "docs", []core.VectorConfig{
		{Name: "vector", Dim: 2},
		{Name: "title_vector", Dim: 2},
	})
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{
		{ID: "both", Embeddings: []core.NamedVector{
			{Name: "vector", Values: []float32{0, 1}},
			{Name: "title_vector", Values: []float32{1, 0}},
		}},
		{ID: "only-default", Embeddings: []core.NamedVector{
			{Name: "vector", Values: []float32{1, 0}},
		}},
	}))

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 10,
		vectorstore.WithVectorField("title_vector"))
	require.NoError(t, err)

	// Chunks without the named field are not candidates.
	require.Len(t, results, 1)
	assert.Equal(t, "both", results[0].Chunk.ID)
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 1)

	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{
		{ID: "keep", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1}}}},
		{ID: "drop", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{2}}}},
	}))

	require.NoError(t, store.Remove(ctx, "docs", []string{"drop", "never-existed"}))

	chunks, err := store.Dump(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "keep", chunks[0].ID)
}

func TestDropCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 1)
	newTestCollection(t, store, "other", 1)

	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{
		{ID: "a", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1}}}},
	}))

	require.NoError(t, store.DropCollection(ctx, "docs"))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)

	_, err = store.Search(ctx, "docs", []float32{1}, 5)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestLoadAndReleaseAreExistenceChecks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newTestCollection(t, store, "docs", 1)

	require.NoError(t, store.LoadCollection(ctx, "docs"))
	require.NoError(t, store.ReleaseCollection(ctx, "docs"))
	require.NoError(t, store.CreateIndex(ctx, "docs", ""))

	assert.ErrorIs(t, store.LoadCollection(ctx, "ghost"), vectorstore.ErrCollectionNotFound)
}

func TestFileSystemPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := New(WithPath(dir), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	newTestCollection(t, store, "docs", 1)
	require.NoError(t, store.Add(ctx, "docs", []core.Chunk{
		{ID: "persisted", Text: "survives reopen", Embeddings: []core.NamedVector{{Name: "vector", Values: []float32{1}}}},
	}))
	require.NoError(t, store.Close())

	reopened, err := New(WithPath(dir), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	defer reopened.Close()

	chunks, err := reopened.Retrieve(ctx, "docs", []string{"persisted"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "survives reopen", chunks[0].Text)
}
