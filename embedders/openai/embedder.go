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


// Package openai computes embeddings through the OpenAI embeddings API. The
// azure, regolo, and mistral packages reuse this adapter with their own
// endpoint configuration.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	gopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/embedders"
)

var tracer = otel.Tracer("maestro.embedders.openai")

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// modelDims are the native output sizes of the models this adapter is
// usually pointed at.
var modelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"mistral-embed":          1024,
}

// Config holds the adapter settings.
type Config struct {
	// APIKey authenticates against the endpoint.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// BaseURL overrides the API endpoint. Empty means the vendor default.
	BaseURL string

	// Organization is the optional OpenAI organization ID.
	Organization string

	// Dimensions requests a reduced output size on models that support it.
	// Zero keeps the model's native size.
	Dimensions int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SpanName labels this adapter's trace spans. The reusing packages set
	// it to their own provider name.
	SpanName string
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.APIKey = key
		return nil
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) Option {
	return func(c *Config) error {
		c.Model = model
		return nil
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) error {
		c.BaseURL = url
		return nil
	}
}

// WithOrganization sets the OpenAI organization ID.
func WithOrganization(org string) Option {
	return func(c *Config) error {
		c.Organization = org
		return nil
	}
}

// WithDimensions requests a reduced output size.
func WithDimensions(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("dimensions must not be negative: %d", n)
		}
		c.Dimensions = n
		return nil
	}
}

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) error {
		c.HTTPClient = hc
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// Embedder implements embedders.Embedder over the OpenAI embeddings API.
type Embedder struct {
	api      *gopenai.Client
	model    string
	dims     int
	spanName string
	logger   *slog.Logger
}

// New builds an embedder against the OpenAI API.
//
// Returns the embedders.Embedder interface to prevent coupling to this
// provider's concrete type.
func New(opts ...Option) (embedders.Embedder, error) {
	cfg := Config{Model: DefaultModel, SpanName: "openai"}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", embedders.ErrMissingAPIKey)
	}
	cc := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		cc.OrgID = cfg.Organization
	}
	return NewFromClientConfig(cc, cfg)
}

// NewFromClientConfig wraps a prebuilt go-openai client configuration. The
// azure, regolo, and mistral packages use this entry point; most callers
// want New.
func NewFromClientConfig(cc gopenai.ClientConfig, cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SpanName == "" {
		cfg.SpanName = "openai"
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		api:      gopenai.NewClientWithConfig(cc),
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		spanName: cfg.SpanName,
		logger:   logger.With("component", cfg.SpanName+"-embedder"),
	}, nil
}

// Dim reports the configured or model-native output size, or 0 when the
// model is unknown to this adapter.
func (e *Embedder) Dim() int {
	if e.dims > 0 {
		return e.dims
	}
	return modelDims[e.model]
}

// Embed computes one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string, opts ...embedders.Option) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	o := embedders.ApplyOptions(opts...)
	model := e.model
	if o.Model != "" {
		model = o.Model
	}

	e.logger.Debug("generating embeddings", "count", len(texts), "model", model)
	ctx, span := tracer.Start(ctx, e.spanName+".Embed", trace.WithAttributes(
		attribute.String("embeddings.provider", e.spanName),
		attribute.String("embeddings.model", model),
		attribute.Int("embeddings.count", len(texts)),
	))
	defer span.End()

	req := gopenai.EmbeddingRequest{
		Input: texts,
		Model: gopenai.EmbeddingModel(model),
	}
	if e.dims > 0 {
		req.Dimensions = e.dims
	}
	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s embeddings: %w", e.spanName, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s: %w: got %d vectors for %d texts", e.spanName, embedders.ErrEmptyResponse, len(resp.Data), len(texts))
	}

	// The API may reorder the batch; Index restores input order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedOne computes the vector for a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string, opts ...embedders.Option) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text}, opts...)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%s: %w", e.spanName, embedders.ErrEmptyResponse)
	}
	return vectors[0], nil
}
