// Package embedders defines the embedding contract shared by the provider
// adapters in its subpackages.
//
// An Embedder turns text into dense vectors for similarity search. Provider
// packages (openai, azure, mistral, regolo, ollama) adapt vendor APIs to
// this interface; the mock package offers a deterministic double for tests.
// Constructors return the Embedder interface rather than concrete types, so
// pipelines can swap providers through configuration.
package embedders

import "context"

// Embedder computes dense vector embeddings for text.
type Embedder interface {
	// Embed computes one vector per input text, in input order.
	Embed(ctx context.Context, texts []string, opts ...Option) ([][]float32, error)

	// EmbedOne computes the vector for a single text.
	EmbedOne(ctx context.Context, text string, opts ...Option) ([]float32, error)

	// Dim reports the vector dimensionality this embedder produces, or 0
	// when it is not known ahead of the first call.
	Dim() int
}

// Options collects the per-call settings shared by all providers. Zero
// values mean "embedder default".
type Options struct {
	Model string
}

// Option mutates Options.
type Option func(*Options)

// ApplyOptions folds opts into a fresh Options. Providers call this at the
// top of every entry point.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithModel overrides the embedder's configured model for this call.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}
