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


// Package azure computes embeddings through an Azure OpenAI deployment.
package azure

import (
	"fmt"
	"log/slog"
	"net/http"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/poiesic/maestro/embedders"
	"github.com/poiesic/maestro/embedders/openai"
)

// Config holds the Azure OpenAI embedding settings.
type Config struct {
	// APIKey authenticates against the Azure resource.
	APIKey string

	// Endpoint is the resource URL, such as
	// https://myresource.openai.azure.com.
	Endpoint string

	// APIVersion overrides the api-version query parameter.
	APIVersion string

	// Deployment is the embedding deployment name.
	Deployment string

	// Dimensions requests a reduced output size on models that support it.
	Dimensions int

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

// WithEndpoint sets the Azure resource URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Endpoint = endpoint
		return nil
	}
}

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(version string) Option {
	return func(c *Config) error {
		c.APIVersion = version
		return nil
	}
}

// WithDeployment sets the embedding deployment name.
func WithDeployment(name string) Option {
	return func(c *Config) error {
		c.Deployment = name
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

// New builds an embedder against an Azure OpenAI deployment.
//
// Returns the embedders.Embedder interface to prevent coupling to the
// underlying adapter type.
func New(opts ...Option) (embedders.Embedder, error) {
	var cfg Config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure: %w", embedders.ErrMissingAPIKey)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure: endpoint is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("azure: deployment is required")
	}

	cc := gopenai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		cc.APIVersion = cfg.APIVersion
	}
	return openai.NewFromClientConfig(cc, openai.Config{
		Model:      cfg.Deployment,
		Dimensions: cfg.Dimensions,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
		SpanName:   "azure",
	})
}
