package maestro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/clients"
	clientmock "github.com/poiesic/maestro/clients/mock"
	"github.com/poiesic/maestro/core"
	mockembed "github.com/poiesic/maestro/embedders/mock"
	"github.com/poiesic/maestro/pipeline"
	"github.com/poiesic/maestro/reindex"
	"github.com/poiesic/maestro/vectorstore"
	badgerstore "github.com/poiesic/maestro/vectorstore/badger"
)

func newTestStore(t *testing.T) vectorstore.Store {
	t.Helper()

	store, err := badgerstore.New(
		badgerstore.WithInMemory(),
		badgerstore.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestStack(t *testing.T, opts ...Option) *Stack {
	t.Helper()

	base := []Option{
		WithStore(newTestStore(t)),
		WithEmbedder(mockembed.NewWithDim(8)),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	stack, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return stack
}

func testDocs() []pipeline.Document {
	return []pipeline.Document{
		{Text: "The launch is planned for Thursday morning.", Metadata: map[string]any{"source": "doc-0"}},
		{Text: "Deploys are frozen during the holiday week.", Metadata: map[string]any{"source": "doc-1"}},
		{Text: "The postmortem template lives in the wiki.", Metadata: map[string]any{"source": "doc-2"}},
	}
}

func TestNew_Validation(t *testing.T) {
	t.Run("missing store", func(t *testing.T) {
		_, err := New(WithEmbedder(mockembed.NewWithDim(8)))
		assert.ErrorIs(t, err, ErrStoreRequired)
	})

	t.Run("missing embedder", func(t *testing.T) {
		_, err := New(WithStore(newTestStore(t)))
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("non-positive top k", func(t *testing.T) {
		_, err := New(
			WithStore(newTestStore(t)),
			WithEmbedder(mockembed.NewWithDim(8)),
			WithTopK(0),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "top k must be positive")
	})
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	count, err := stack.Ingest(ctx, "notes", testDocs())
	require.NoError(t, err)
	assert.Equal(t, 3, count, "each short document should produce one chunk")

	collections, err := stack.Store().ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, collections, "notes", "ingest should create the collection")

	results, err := stack.Search(ctx, "notes", "Deploys are frozen during the holiday week.", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Deploys are frozen during the holiday week.", results[0].Chunk.Text,
		"the exact text should rank first")
	assert.Equal(t, "doc-1", results[0].Chunk.Metadata["source"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	require.NoError(t, stack.EnsureCollection(ctx, "notes"))
	require.NoError(t, stack.EnsureCollection(ctx, "notes"), "existing collections are left alone")

	collections, err := stack.Store().ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, collections, "notes")
}

func TestEnsureCollectionUnknownDim(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, WithEmbedder(mockembed.NewWithDim(0)))

	err := stack.EnsureCollection(ctx, "notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensionality")

	// A collection created up front is accepted as is.
	err = stack.Store().CreateCollection(ctx, "notes", []core.VectorConfig{
		{Name: core.DefaultVectorField, Dim: 8},
	})
	require.NoError(t, err)
	assert.NoError(t, stack.EnsureCollection(ctx, "notes"))
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	client := clientmock.New()
	var systemPrompt string
	client.InvokeFunc = func(_ context.Context, _ string, opts ...clients.InvokeOption) (*core.Response, error) {
		systemPrompt = clients.ApplyInvokeOptions(opts...).SystemPrompt
		return &core.Response{
			Content:    core.Blocks{core.TextBlock{Content: "Deploys are frozen that week."}},
			StopReason: core.StopReasonStop,
			Usage:      core.TokenUsage{Prompt: 42, Completion: 7},
		}, nil
	}

	stack := newTestStack(t, WithClient(client), WithTopK(2))
	_, err := stack.Ingest(ctx, "notes", testDocs())
	require.NoError(t, err)

	answer, err := stack.Ask(ctx, "notes", "When are deploys frozen?")
	require.NoError(t, err)

	assert.Equal(t, "Deploys are frozen that week.", answer.Text)
	assert.Len(t, answer.Sources, 2, "sources should honor the configured top k")
	assert.Equal(t, core.TokenUsage{Prompt: 42, Completion: 7}, answer.Usage)
	assert.Contains(t, systemPrompt, "only the provided context")

	require.Len(t, client.Prompts(), 1)
	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "Context:\n[1] ")
	assert.Contains(t, prompt, "\nQuestion: When are deploys frozen?")
	for _, src := range answer.Sources {
		assert.Contains(t, prompt, src.Chunk.Text, "every source should appear in the prompt")
	}
}

func TestAskWithoutClient(t *testing.T) {
	stack := newTestStack(t)

	_, err := stack.Ask(context.Background(), "notes", "anything")
	assert.ErrorIs(t, err, ErrClientRequired)
}

func TestAskClientError(t *testing.T) {
	ctx := context.Background()

	client := clientmock.New()
	client.InvokeFunc = func(context.Context, string, ...clients.InvokeOption) (*core.Response, error) {
		return nil, errors.New("provider down")
	}

	stack := newTestStack(t, WithClient(client))
	require.NoError(t, stack.EnsureCollection(ctx, "notes"))

	_, err := stack.Ask(ctx, "notes", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoke model")
	assert.Contains(t, err.Error(), "provider down")
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	require.NoError(t, stack.EnsureCollection(ctx, "notes"))

	// Seed chunks carrying stale zero vectors.
	chunks := make([]core.Chunk, 3)
	for i := range chunks {
		chunks[i] = core.Chunk{
			ID:   fmt.Sprintf("chunk-%d", i),
			Text: fmt.Sprintf("stored text %d", i),
			Embeddings: []core.NamedVector{
				{Name: core.DefaultVectorField, Values: make([]float32, 8)},
			},
		}
	}
	require.NoError(t, stack.Store().Add(ctx, "notes", chunks))

	require.NoError(t, stack.Reindex(ctx, "notes", reindex.WithPoolSize(1)))

	stored, err := stack.Store().Dump(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, stored, 3)

	reference := mockembed.NewWithDim(8)
	for _, chunk := range stored {
		vector, ok := chunk.Embedding(core.DefaultVectorField)
		require.True(t, ok, "chunk %s should have an embedding", chunk.ID)

		want, err := reference.EmbedOne(ctx, chunk.Text)
		require.NoError(t, err)
		assert.Equal(t, want, vector, "chunk %s should carry the vector of its own text", chunk.ID)
	}
}

func TestAccessorsAndClose(t *testing.T) {
	client := clientmock.New()
	stack := newTestStack(t, WithClient(client))

	assert.NotNil(t, stack.Store())
	assert.NotNil(t, stack.Embedder())
	assert.NotNil(t, stack.Splitter())
	assert.Same(t, client, stack.Client())

	assert.NoError(t, stack.Close())
}
