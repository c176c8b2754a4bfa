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


// Package regolo computes embeddings through the Regolo inference platform,
// whose embeddings endpoint speaks the OpenAI wire format.
package regolo

import (
	"fmt"
	"log/slog"
	"net/http"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/embedders/openai"
)

const (
	// DefaultBaseURL is the hosted Regolo endpoint.
	DefaultBaseURL = "https://api.regolo.ai/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gte-Qwen2-7B-instruct"
)

// Config holds the Regolo embedding settings.
type Config struct {
	// APIKey authenticates against the endpoint.
	APIKey string

	// Model is the hosted embedding model identifier.
	Model string

	// BaseURL overrides the endpoint, e.g. for a self-hosted deployment.
	BaseURL string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
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

// New builds an embedder against the Regolo API.
//
// Returns the embedders.Embedder interface to prevent coupling to the
// underlying adapter type.
func New(opts ...Option) (embedders.Embedder, error) {
	cfg := Config{Model: DefaultModel, BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("regolo: %w", embedders.ErrMissingAPIKey)
	}

	cc := gopenai.DefaultConfig(cfg.APIKey)
	cc.BaseURL = cfg.BaseURL
	return openai.NewFromClientConfig(cc, openai.Config{
		Model:      cfg.Model,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
		SpanName:   "regolo",
	})
}
