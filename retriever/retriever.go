package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/vectorstore"
)

// KeyQuery is the input key Run reads the query text from.
const KeyQuery = "query"

// Retriever answers text queries with the most similar chunks from one
// collection.
type Retriever struct {
	embedder   embedders.Embedder
	store      vectorstore.Store
	collection string
	k          int
	searchOpts []vectorstore.SearchOption
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithSearchOptions forwards per-search settings, such as the vector field
// or output fields, to every search.
func WithSearchOptions(opts ...vectorstore.SearchOption) Option {
	return func(r *Retriever) error {
		r.searchOpts = append(r.searchOpts, opts...)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a retriever over one collection. k caps the result count per
// query; k <= 0 means vectorstore.DefaultK.
func New(
	embedder embedders.Embedder,
	store vectorstore.Store,
	collection string,
	k int,
	opts ...Option,
) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	if k <= 0 {
		k = vectorstore.DefaultK
	}

	r := &Retriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
		k:          k,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Retrieve returns up to k chunks ranked by descending similarity to the
// query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]core.Chunk, error) {
	results, err := r.ResultsWithMonitor(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	chunks := make([]core.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}

// Results returns the scored hits instead of bare chunks.
func (r *Retriever) Results(ctx context.Context, query string) ([]vectorstore.Result, error) {
	return r.ResultsWithMonitor(ctx, query, nil)
}

// ResultsWithMonitor returns the scored hits with monitoring. The monitor
// receives callbacks at each stage of retrieval.
func (r *Retriever) ResultsWithMonitor(ctx context.Context, query string, monitor Monitor) ([]vectorstore.Result, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		r.logger.Error("error embedding query", "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	monitor.AfterEmbedding(vector)

	results, err := r.store.Search(ctx, r.collection, vector, r.k, r.searchOpts...)
	if err != nil {
		r.logger.Error("error searching collection", "collection", r.collection, "err", err)
		return nil, err
	}
	monitor.Finish(results)

	return results, nil
}

// Run lets the retriever act as a pipeline component. It reads the query
// text under KeyQuery and outputs the retrieved chunks.
func (r *Retriever) Run(ctx context.Context, in map[string]any) (any, error) {
	v, ok := in[KeyQuery]
	if !ok {
		return nil, fmt.Errorf("missing input %q", KeyQuery)
	}
	query, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("input %q: expected string, got %T", KeyQuery, v)
	}
	return r.Retrieve(ctx, query)
}
