package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/splitter"
	"github.com/poiesic/maestro/vectorstore"
)

// DefaultEmbedBatch is the number of chunks embedded per worker task.
const DefaultEmbedBatch = 32

// Document is one unit of source text for ingestion. Metadata is merged
// into every chunk produced from the document.
type Document struct {
	Text     string
	Metadata map[string]any
}

// IngestionPipeline splits documents, embeds the chunks concurrently, and
// writes them to a collection.
type IngestionPipeline struct {
	splitter    *splitter.TextSplitter
	embedder    embedders.Embedder
	store       vectorstore.Store
	collection  string
	vectorField string
	batchSize   int
	pool        *ants.Pool
	logger      *slog.Logger
}

// IngestionOption configures an IngestionPipeline.
type IngestionOption func(*IngestionPipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) IngestionOption {
	return func(p *IngestionPipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks each worker task embeds in one
// provider call. Default is DefaultEmbedBatch.
func WithEmbedBatchSize(size int) IngestionOption {
	return func(p *IngestionPipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithVectorField attaches embeddings under the named vector field.
// Default is core.DefaultVectorField.
func WithVectorField(name string) IngestionOption {
	return func(p *IngestionPipeline) error {
		if name == "" {
			name = core.DefaultVectorField
		}
		p.vectorField = name
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) IngestionOption {
	return func(p *IngestionPipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewIngestion creates an ingestion pipeline writing to the given
// collection.
func NewIngestion(
	split *splitter.TextSplitter,
	embedder embedders.Embedder,
	store vectorstore.Store,
	collection string,
	opts ...IngestionOption,
) (*IngestionPipeline, error) {
	if split == nil {
		return nil, ErrSplitterRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &IngestionPipeline{
		splitter:    split,
		embedder:    embedder,
		store:       store,
		collection:  collection,
		vectorField: core.DefaultVectorField,
		batchSize:   DefaultEmbedBatch,
		pool:        pool,
		logger:      slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Run ingests the documents in order. Each document is split, its chunks
// embedded in parallel batches, and the whole batch written to the
// collection. The first failing document aborts the run; the returned count
// covers the chunks written before the failure.
func (p *IngestionPipeline) Run(ctx context.Context, docs []Document) (int, error) {
	total := 0
	for i, doc := range docs {
		chunks := p.splitter.Split(doc.Text)
		if len(chunks) == 0 {
			continue
		}
		stampMetadata(chunks, doc.Metadata)
		if err := p.embedChunks(ctx, chunks); err != nil {
			return total, fmt.Errorf("document %d: %w", i, err)
		}
		if err := p.store.Add(ctx, p.collection, chunks); err != nil {
			return total, fmt.Errorf("document %d: %w", i, err)
		}
		total += len(chunks)
		p.logger.Info("ingested document", "document", i, "chunks", len(chunks))
	}
	return total, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *IngestionPipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// embedChunks embeds the chunks in batches on the worker pool. Batches
// cover disjoint index ranges, so workers attach vectors without
// coordination and chunk order is preserved.
func (p *IngestionPipeline) embedChunks(ctx context.Context, chunks []core.Chunk) error {
	type span struct{ start, end int }
	var batches []span
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batches = append(batches, span{start: start, end: end})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for bi, b := range batches {
		texts := make([]string, 0, b.end-b.start)
		for _, chunk := range chunks[b.start:b.end] {
			texts = append(texts, chunk.Text)
		}

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			vectors, err := p.embedder.Embed(ctx, texts)
			if err != nil {
				errs[bi] = err
				return
			}
			if len(vectors) != len(texts) {
				errs[bi] = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
				return
			}
			for j, values := range vectors {
				chunks[b.start+j].AttachEmbedding(p.vectorField, values)
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[bi] = submitErr
		}
	}
	wg.Wait()

	return errors.Join(errs...)
}

// stampMetadata merges document metadata under each chunk's own entries.
func stampMetadata(chunks []core.Chunk, metadata map[string]any) {
	if len(metadata) == 0 {
		return
	}
	for i := range chunks {
		merged := maps.Clone(metadata)
		maps.Copy(merged, chunks[i].Metadata)
		chunks[i].Metadata = merged
	}
}
