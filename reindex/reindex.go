// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/vectorstore"
)

// Config holds the settings for a reindex run.
type Config struct {
	// BatchSize is the number of chunks embedded and written per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// PoolSize is the number of batches processed concurrently
	PoolSize int

	// VectorField is the embedding field written to each chunk
	VectorField string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		PoolSize:       poolSize,
		VectorField:    core.DefaultVectorField,
	}
}

// normalize clamps out-of-range settings to usable values.
func (c *Config) normalize() {
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.ReportInterval < 1 {
		c.ReportInterval = 1
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.PoolSize < 1 {
		c.PoolSize = 1
	}
	if c.VectorField == "" {
		c.VectorField = core.DefaultVectorField
	}
}

// Option configures a Reindexer.
type Option func(*Reindexer) error

// WithConfig replaces the full configuration. The config is copied; a nil
// config restores the defaults.
func WithConfig(config *Config) Option {
	return func(r *Reindexer) error {
		if config == nil {
			config = DefaultConfig()
		}
		c := *config
		r.config = &c
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded and written per batch.
func WithBatchSize(size int) Option {
	return func(r *Reindexer) error {
		if size < 1 {
			size = 1
		}
		r.config.BatchSize = size
		return nil
	}
}

// WithPoolSize sets how many batches are processed concurrently.
func WithPoolSize(size int) Option {
	return func(r *Reindexer) error {
		if size < 1 {
			size = 1
		}
		r.config.PoolSize = size
		return nil
	}
}

// WithVectorField sets the embedding field written to each chunk. An empty
// name selects core.DefaultVectorField.
func WithVectorField(name string) Option {
	return func(r *Reindexer) error {
		if name == "" {
			name = core.DefaultVectorField
		}
		r.config.VectorField = name
		return nil
	}
}

// WithProgress sets where progress output is written, typically os.Stderr.
// A nil writer discards it.
func WithProgress(w io.Writer) Option {
	return func(r *Reindexer) error {
		if w == nil {
			w = io.Discard
		}
		r.progress = w
		return nil
	}
}

// Reindexer rebuilds the embeddings of every chunk in one collection,
// writing each chunk back under its original ID.
type Reindexer struct {
	store      vectorstore.Store
	collection string
	embedder   embedders.Embedder
	config     *Config
	progress   io.Writer
}

// New creates a Reindexer for the given collection.
func New(store vectorstore.Store, collection string, embedder embedders.Embedder, opts ...Option) (*Reindexer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Reindexer{
		store:      store,
		collection: collection,
		embedder:   embedder,
		config:     DefaultConfig(),
		progress:   io.Discard,
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.config.normalize()

	return r, nil
}

// Run reindexes a collection in one call. It is shorthand for New followed
// by Reindexer.Run.
func Run(ctx context.Context, store vectorstore.Store, collection string, embedder embedders.Embedder, opts ...Option) error {
	r, err := New(store, collection, embedder, opts...)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// Run re-embeds every chunk in the collection with the configured embedder
// and writes the results back under the original chunk IDs. Batches run
// concurrently; each chunk keeps the vector computed from its own text.
func (r *Reindexer) Run(ctx context.Context) error {
	chunks, err := r.store.Dump(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("dump collection %q: %w", r.collection, err)
	}

	total := len(chunks)
	if total == 0 {
		fmt.Fprintf(r.progress, "Collection %q is empty (0 chunks)\n", r.collection)
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	pool, err := ants.NewPool(r.config.PoolSize)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	type span struct{ start, end int }
	var batches []span
	for start := 0; start < total; start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > total {
			end = total
		}
		batches = append(batches, span{start: start, end: end})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for bi, b := range batches {
		batch := chunks[b.start:b.end]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := r.processBatch(ctx, batch); err != nil {
				errs[bi] = fmt.Errorf("batch %d: %w", bi, err)
				return
			}
			tracker.Increment(len(batch))
		})
		if submitErr != nil {
			wg.Done()
			errs[bi] = submitErr
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		total, elapsed.Round(time.Second), float64(total)/elapsed.Seconds())

	return nil
}

// processBatch embeds the batch's texts with retry and writes the chunks
// back to the store.
func (r *Reindexer) processBatch(ctx context.Context, batch []core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := retryWithBackoff(ctx, func() error {
		var err error
		vectors, err = r.embedder.Embed(ctx, texts)
		return err
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("embed after %d attempts: %w", r.config.MaxRetries, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}

	for i := range batch {
		batch[i].AttachEmbedding(r.config.VectorField, vectors[i])
	}
	if err := r.store.Add(ctx, r.collection, batch); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}
