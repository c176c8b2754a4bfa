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


package vectorstore

import (
	"context"

	"github.com/poiesic/maestro/core"
)

// DefaultK is the result count used when Search is called with k <= 0.
const DefaultK = 10

// Result is one similarity-search hit.
type Result struct {
	Chunk core.Chunk
	Score float32
}

// Store persists chunks into named collections and answers similarity
// queries. Implementations must be safe for concurrent use.
type Store interface {
	// CreateCollection creates a collection with the given vector fields.
	// If the collection already exists it logs a warning and returns nil.
	CreateCollection(ctx context.Context, name string, vectors []core.VectorConfig) error

	// DropCollection removes a collection and all of its chunks.
	DropCollection(ctx context.Context, name string) error

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// LoadCollection makes a collection available for search on backends
	// that distinguish loaded from stored state. Elsewhere it is a no-op.
	LoadCollection(ctx context.Context, name string) error

	// ReleaseCollection undoes LoadCollection where the backend
	// distinguishes the two states. Elsewhere it is a no-op.
	ReleaseCollection(ctx context.Context, name string) error

	// CreateIndex builds the backend's default index on the given vector
	// field. If an index already exists on the field it is a no-op.
	CreateIndex(ctx context.Context, collection, field string) error

	// Add inserts chunks into a collection. Every chunk must carry at least
	// one embedding; a chunk without one fails the whole batch with
	// ErrMissingEmbedding before anything is written.
	Add(ctx context.Context, collection string, chunks []core.Chunk) error

	// Search returns up to k chunks ordered by descending similarity to the
	// query vector. k <= 0 means DefaultK.
	Search(ctx context.Context, collection string, vector []float32, k int, opts ...SearchOption) ([]Result, error)

	// Remove deletes chunks by ID. Unknown IDs are ignored.
	Remove(ctx context.Context, collection string, ids []string) error

	// Retrieve returns the chunks stored under the given IDs, with text,
	// metadata, and embeddings equal to what was added. Unknown IDs are
	// skipped without error.
	Retrieve(ctx context.Context, collection string, ids []string) ([]core.Chunk, error)

	// Dump returns every chunk in the collection, paging through the
	// backend in batches.
	Dump(ctx context.Context, collection string) ([]core.Chunk, error)

	// Close releases the backend connection or file handles.
	Close() error
}

// SearchOptions collects the per-search settings. Zero values mean "backend
// default".
type SearchOptions struct {
	// Filter is a backend-native filter expression applied before ranking.
	Filter string

	// VectorField picks which vector field to search when the collection
	// has more than one. Empty means core.DefaultVectorField.
	VectorField string

	// OutputFields names the stored fields decoded into result chunks.
	// Empty means the backend's default set, which includes text and
	// metadata but may omit vectors.
	OutputFields []string
}

// SearchOption mutates SearchOptions.
type SearchOption func(*SearchOptions)

// ApplySearchOptions folds opts into a fresh SearchOptions.
func ApplySearchOptions(opts ...SearchOption) SearchOptions {
	var o SearchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFilter applies a backend-native filter expression to the search.
func WithFilter(expr string) SearchOption {
	return func(o *SearchOptions) { o.Filter = expr }
}

// WithVectorField searches the named vector field instead of the default.
func WithVectorField(name string) SearchOption {
	return func(o *SearchOptions) { o.VectorField = name }
}

// WithOutputFields restricts the stored fields decoded into result chunks.
func WithOutputFields(fields ...string) SearchOption {
	return func(o *SearchOptions) { o.OutputFields = fields }
}
