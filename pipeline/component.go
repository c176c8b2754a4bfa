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


package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/splitter"
	"github.com/poiesic/maestro/vectorstore"
)

// Input keys read by the bundled components.
const (
	// KeyText carries the raw text a splitter consumes.
	KeyText = "text"

	// KeyChunks carries a []core.Chunk between embedding and storage
	// stages.
	KeyChunks = "chunks"
)

// Component is one named processing unit in a pipeline. Run receives the
// inputs wired to the step and returns a single output value.
type Component interface {
	Run(ctx context.Context, in map[string]any) (any, error)
}

// ComponentFunc adapts a plain function to the Component interface.
type ComponentFunc func(ctx context.Context, in map[string]any) (any, error)

// Run calls f.
func (f ComponentFunc) Run(ctx context.Context, in map[string]any) (any, error) {
	return f(ctx, in)
}

// SplitterComponent runs a text splitter as a pipeline step. It reads the
// text under KeyText and outputs the resulting chunks.
type SplitterComponent struct {
	splitter *splitter.TextSplitter
}

// NewSplitterComponent wraps a splitter.
func NewSplitterComponent(s *splitter.TextSplitter) *SplitterComponent {
	return &SplitterComponent{splitter: s}
}

// Run splits the input text into chunks.
func (c *SplitterComponent) Run(_ context.Context, in map[string]any) (any, error) {
	text, err := stringInput(in, KeyText)
	if err != nil {
		return nil, err
	}
	return c.splitter.Split(text), nil
}

// EmbedderComponent attaches embeddings to the chunks under KeyChunks and
// outputs the same chunks.
type EmbedderComponent struct {
	embedder embedders.Embedder
	field    string
}

// NewEmbedderComponent wraps an embedder. Vectors are attached under field,
// or core.DefaultVectorField when field is empty.
func NewEmbedderComponent(e embedders.Embedder, field string) *EmbedderComponent {
	if field == "" {
		field = core.DefaultVectorField
	}
	return &EmbedderComponent{embedder: e, field: field}
}

// Run embeds every chunk's text in one batch.
func (c *EmbedderComponent) Run(ctx context.Context, in map[string]any) (any, error) {
	chunks, err := chunksInput(in, KeyChunks)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].AttachEmbedding(c.field, vectors[i])
	}
	return chunks, nil
}

// StoreWriterComponent persists the chunks under KeyChunks into a collection
// and outputs them unchanged.
type StoreWriterComponent struct {
	store      vectorstore.Store
	collection string
}

// NewStoreWriterComponent wraps a store targeting one collection.
func NewStoreWriterComponent(store vectorstore.Store, collection string) *StoreWriterComponent {
	return &StoreWriterComponent{store: store, collection: collection}
}

// Run writes the input chunks to the collection.
func (c *StoreWriterComponent) Run(ctx context.Context, in map[string]any) (any, error) {
	chunks, err := chunksInput(in, KeyChunks)
	if err != nil {
		return nil, err
	}
	if err := c.store.Add(ctx, c.collection, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func stringInput(in map[string]any, key string) (string, error) {
	v, ok := in[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingInput, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %q: expected string, got %T", key, v)
	}
	return s, nil
}

func chunksInput(in map[string]any, key string) ([]core.Chunk, error) {
	v, ok := in[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingInput, key)
	}
	chunks, ok := v.([]core.Chunk)
	if !ok {
		return nil, fmt.Errorf("input %q: expected []core.Chunk, got %T", key, v)
	}
	return chunks, nil
}
