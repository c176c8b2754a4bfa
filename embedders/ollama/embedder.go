// Package ollama computes embeddings through a local Ollama server.
//
// Ollama's embeddings endpoint takes one text per request, so Embed issues
// one call per input. Batches that need throughput should run through a
// worker pool upstream.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/embedders"
)

var tracer = otel.Tracer("maestro.embedders.ollama")

const (
	// DefaultBaseURL is the local Ollama server.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "qwen3-embedding:8b"
)

// modelDims are the native output sizes of common Ollama embedding models.
var modelDims = map[string]int{
	"qwen3-embedding:8b": 4096,
	"nomic-embed-text":   768,
	"mxbai-embed-large":  1024,
}

// Config holds the Ollama embedding settings.
type Config struct {
	// BaseURL is the server address.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithBaseURL sets the server address.
func WithBaseURL(url string) Option {
	return func(c *Config) error {
		c.BaseURL = url
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

// Embedder implements embedders.Embedder against the Ollama REST API.
type Embedder struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// New builds an embedder against a local Ollama server.
//
// Returns the embedders.Embedder interface to prevent coupling to this
// provider's concrete type.
func New(opts ...Option) (embedders.Embedder, error) {
	cfg := Config{BaseURL: DefaultBaseURL, Model: DefaultModel}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    hc,
		logger:  logger.With("component", "ollama-embedder"),
	}, nil
}

// Dim reports the model's native output size, or 0 when the model is
// unknown to this adapter.
func (e *Embedder) Dim() int {
	return modelDims[e.model]
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed computes one vector per input text, in input order. Each text is a
// separate server round trip.
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
	ctx, span := tracer.Start(ctx, "ollama.Embed", trace.WithAttributes(
		attribute.String("embeddings.provider", "ollama"),
		attribute.String("embeddings.model", model),
		attribute.Int("embeddings.count", len(texts)),
	))
	defer span.End()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := e.embedOne(ctx, model, text)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = vector
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
		return nil, fmt.Errorf("ollama: %w", embedders.ErrEmptyResponse)
	}
	return vectors[0], nil
}

func (e *Embedder) embedOne(ctx context.Context, model, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: call server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: %w", embedders.ErrEmptyResponse)
	}
	return decoded.Embedding, nil
}
