// Package mock provides a deterministic embedders.Embedder double for tests
// and offline runs.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/poiesic/maestro/embedders"
)

// DefaultDim is the vector size the default behavior produces.
const DefaultDim = 384

// Embedder is a test double for embedders.Embedder.
// It allows custom behavior injection via function fields.
type Embedder struct {
	// EmbedFunc is called by Embed if set.
	// If nil, uses default deterministic behavior.
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOneFunc is called by EmbedOne if set.
	// If nil, uses default deterministic behavior.
	EmbedOneFunc func(ctx context.Context, text string) ([]float32, error)

	dim       int
	callCount int
}

var _ embedders.Embedder = (*Embedder)(nil)

// New creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via function fields.
func New() *Embedder {
	return &Embedder{dim: DefaultDim}
}

// NewWithDim creates a mock embedder producing vectors of the given size.
func NewWithDim(dim int) *Embedder {
	return &Embedder{dim: dim}
}

// Dim reports the vector size the default behavior produces.
func (m *Embedder) Dim() int {
	return m.dim
}

// Embed generates deterministic embeddings for multiple texts.
func (m *Embedder) Embed(ctx context.Context, texts []string, _ ...embedders.Option) ([][]float32, error) {
	m.callCount++

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}

	// Default: generate deterministic vectors for each text
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = deterministicVector(text, m.dim)
	}
	return vectors, nil
}

// EmbedOne generates a deterministic embedding based on text hash.
func (m *Embedder) EmbedOne(ctx context.Context, text string, _ ...embedders.Option) ([]float32, error) {
	m.callCount++

	if m.EmbedOneFunc != nil {
		return m.EmbedOneFunc(ctx, text)
	}

	return deterministicVector(text, m.dim), nil
}

// CallCount returns the number of times any method was called.
func (m *Embedder) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *Embedder) Reset() {
	m.callCount = 0
	m.EmbedFunc = nil
	m.EmbedOneFunc = nil
}

// deterministicVector creates a deterministic embedding vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		// Simple pseudo-random generation based on seed and index
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	// Normalize to unit length so cosine scores stay in range.
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
