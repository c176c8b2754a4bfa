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


// Package maestro bundles an embedder, a vector store, a splitter, and a
// model client behind one handle for the common retrieval workflow: ingest
// documents, search them, and answer questions grounded on what was found.
// The subpackages stay usable on their own; Stack only wires them together.
package maestro

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/pipeline"
	"github.com/poiesic/maestro/reindex"
	"github.com/poiesic/maestro/retriever"
	"github.com/poiesic/maestro/splitter"
	"github.com/poiesic/maestro/vectorstore"
)

// askSystemPrompt frames every Ask call. Answers must come from the
// retrieved context only.
const askSystemPrompt = "You answer questions using only the provided context. " +
	"When the context does not contain the answer, say you do not know."

// Stack is the assembled retrieval setup.
type Stack struct {
	store    vectorstore.Store
	embedder embedders.Embedder
	client   clients.Client
	splitter *splitter.TextSplitter
	topK     int
	logger   *slog.Logger
}

// Option is a functional option for Stack.
type Option func(*Stack) error

// WithStore sets the vector store. Required.
func WithStore(store vectorstore.Store) Option {
	return func(s *Stack) error {
		s.store = store
		return nil
	}
}

// WithEmbedder sets the embedder. Required.
func WithEmbedder(embedder embedders.Embedder) Option {
	return func(s *Stack) error {
		s.embedder = embedder
		return nil
	}
}

// WithClient sets the model client used by Ask. Without one the stack still
// ingests and searches.
func WithClient(client clients.Client) Option {
	return func(s *Stack) error {
		s.client = client
		return nil
	}
}

// WithSplitter replaces the default splitter.
func WithSplitter(split *splitter.TextSplitter) Option {
	return func(s *Stack) error {
		s.splitter = split
		return nil
	}
}

// WithTopK sets how many chunks Ask retrieves as context. Default is
// vectorstore.DefaultK.
func WithTopK(k int) Option {
	return func(s *Stack) error {
		if k < 1 {
			return fmt.Errorf("top k must be positive: %d", k)
		}
		s.topK = k
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New assembles a stack. A store and an embedder are required; the splitter
// defaults to character splitting at splitter.DefaultMaxChar.
func New(opts ...Option) (*Stack, error) {
	s := &Stack{
		topK:   vectorstore.DefaultK,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.store == nil {
		return nil, ErrStoreRequired
	}
	if s.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if s.splitter == nil {
		split, err := splitter.New()
		if err != nil {
			return nil, err
		}
		s.splitter = split
	}
	s.logger = s.logger.With("component", "stack")

	return s, nil
}

// Store returns the stack's vector store.
func (s *Stack) Store() vectorstore.Store { return s.store }

// Embedder returns the stack's embedder.
func (s *Stack) Embedder() embedders.Embedder { return s.embedder }

// Client returns the stack's model client, nil when none was configured.
func (s *Stack) Client() clients.Client { return s.client }

// Splitter returns the stack's text splitter.
func (s *Stack) Splitter() *splitter.TextSplitter { return s.splitter }

// EnsureCollection creates the collection with one dense vector field sized
// to the embedder. An existing collection is left alone, even when the
// embedder does not report its dimensionality.
func (s *Stack) EnsureCollection(ctx context.Context, collection string) error {
	dim := s.embedder.Dim()
	if dim <= 0 {
		names, err := s.store.ListCollections(ctx)
		if err != nil {
			return err
		}
		if slices.Contains(names, collection) {
			return nil
		}
		return fmt.Errorf("embedder does not report its dimensionality; create collection %q explicitly", collection)
	}
	return s.store.CreateCollection(ctx, collection, []core.VectorConfig{{
		Name: core.DefaultVectorField,
		Dim:  dim,
	}})
}

// Ingest splits the documents, embeds the chunks, and writes them to the
// collection, creating it when missing. It returns the number of chunks
// written.
func (s *Stack) Ingest(ctx context.Context, collection string, docs []pipeline.Document) (int, error) {
	if err := s.EnsureCollection(ctx, collection); err != nil {
		return 0, err
	}
	p, err := pipeline.NewIngestion(s.splitter, s.embedder, s.store, collection,
		pipeline.WithLogger(s.logger))
	if err != nil {
		return 0, err
	}
	defer p.Release()
	return p.Run(ctx, docs)
}

// Search returns up to k chunks from the collection ranked by descending
// similarity to the query. k <= 0 means vectorstore.DefaultK.
func (s *Stack) Search(ctx context.Context, collection, query string, k int) ([]vectorstore.Result, error) {
	r, err := retriever.New(s.embedder, s.store, collection, k,
		retriever.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return r.Results(ctx, query)
}

// Answer carries Ask's reply together with the chunks it was grounded on.
type Answer struct {
	Text    string
	Sources []vectorstore.Result
	Usage   core.TokenUsage
}

// Ask retrieves context for the question from the collection and has the
// model answer from it.
func (s *Stack) Ask(ctx context.Context, collection, question string) (*Answer, error) {
	if s.client == nil {
		return nil, ErrClientRequired
	}

	sources, err := s.Search(ctx, collection, question, s.topK)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Invoke(ctx, contextPrompt(question, sources),
		clients.WithSystemPrompt(askSystemPrompt))
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	return &Answer{
		Text:    resp.Text(),
		Sources: sources,
		Usage:   resp.Usage,
	}, nil
}

// Reindex re-embeds every chunk of the collection with the stack's embedder
// and writes the vectors back under the original IDs.
func (s *Stack) Reindex(ctx context.Context, collection string, opts ...reindex.Option) error {
	return reindex.Run(ctx, s.store, collection, s.embedder, opts...)
}

// Close releases the store's backend.
func (s *Stack) Close() error {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing vector store", "err", err)
		return err
	}
	return nil
}

// contextPrompt lays the retrieved chunks out as numbered context above the
// question.
func contextPrompt(question string, sources []vectorstore.Result) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, res := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, res.Chunk.Text)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
