package core

import (
	"encoding/hex"
	"fmt"

	"github.com/go-crypt/x/blake2b"
)

// Chunk is the unit of text that flows between splitters, embedders, and
// vector stores. It is created by a splitting step, mutated only by having
// embeddings attached, and persisted as-is.
type Chunk struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embeddings []NamedVector  `json:"embeddings,omitempty"`
}

// NamedVector is one embedding attached to a chunk under a field name.
type NamedVector struct {
	Name   string    `json:"name"`
	Values []float32 `json:"values"`
}

// DefaultVectorField is the embedding name used when a caller does not pick
// one, and the vector field name stores create by default.
const DefaultVectorField = "vector"

// Embedding returns the vector stored under name.
func (c *Chunk) Embedding(name string) ([]float32, bool) {
	for _, v := range c.Embeddings {
		if v.Name == name {
			return v.Values, true
		}
	}
	return nil, false
}

// MainEmbedding returns the first attached vector, or nil when the chunk has
// none.
func (c *Chunk) MainEmbedding() []float32 {
	if len(c.Embeddings) == 0 {
		return nil
	}
	return c.Embeddings[0].Values
}

// AttachEmbedding adds or replaces the vector stored under name.
func (c *Chunk) AttachEmbedding(name string, values []float32) {
	for i, v := range c.Embeddings {
		if v.Name == name {
			c.Embeddings[i].Values = values
			return
		}
	}
	c.Embeddings = append(c.Embeddings, NamedVector{Name: name, Values: values})
}

// HashID generates a deterministic chunk ID from text content using BLAKE2b
// hashing, so identical content produces identical IDs.
func HashID(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// VectorFormat is the storage format of a vector field.
type VectorFormat string

const (
	// VectorFormatDense is a fixed-dimension float vector.
	VectorFormatDense VectorFormat = "dense"
	// VectorFormatSparse is an index/value sparse vector.
	VectorFormatSparse VectorFormat = "sparse"
)

// VectorConfig specifies one vector field of a collection. It is consumed at
// collection-creation time and immutable afterward.
type VectorConfig struct {
	Name   string       `json:"name"`
	Dim    int          `json:"dim"`
	Format VectorFormat `json:"format"`
}

// Normalize fills zero-valued fields with defaults.
func (v *VectorConfig) Normalize() {
	if v.Name == "" {
		v.Name = DefaultVectorField
	}
	if v.Format == "" {
		v.Format = VectorFormatDense
	}
}

// Validate checks the config after normalization.
func (v *VectorConfig) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidVectorConfig)
	}
	switch v.Format {
	case VectorFormatDense:
		if v.Dim <= 0 {
			return fmt.Errorf("%w: dense field %q needs a positive dim", ErrInvalidVectorConfig, v.Name)
		}
	case VectorFormatSparse:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidVectorConfig, v.Format)
	}
	return nil
}
