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


// Package azure adapts Azure OpenAI deployments to the clients.Client
// contract. Azure speaks the OpenAI chat protocol with endpoint-level
// authentication and deployment names in place of model names, so this
// package only assembles the endpoint configuration and delegates the rest
// to the openai package.
package azure

import (
	"fmt"
	"log/slog"
	"net/http"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/clients/openai"
)

// Config holds the Azure endpoint settings.
type Config struct {
	// APIKey authenticates against the Azure resource.
	APIKey string

	// Endpoint is the resource URL, e.g. "https://myresource.openai.azure.com".
	Endpoint string

	// APIVersion overrides the SDK's default API version query parameter.
	APIVersion string

	// Deployment is the Azure deployment name, used where OpenAI expects a
	// model identifier.
	Deployment string

	// Temperature is the default sampling temperature for every call.
	Temperature float32

	// MaxTokens caps completion length; zero leaves it to the provider.
	MaxTokens int

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

// WithAPIVersion overrides the API version query parameter.
func WithAPIVersion(version string) Option {
	return func(c *Config) error {
		c.APIVersion = version
		return nil
	}
}

// WithDeployment sets the deployment name.
func WithDeployment(deployment string) Option {
	return func(c *Config) error {
		c.Deployment = deployment
		return nil
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Config) error {
		if t < 0 {
			return fmt.Errorf("temperature must not be negative: %v", t)
		}
		c.Temperature = t
		return nil
	}
}

// WithMaxTokens sets the default completion cap.
func WithMaxTokens(n int) Option {
	return func(c *Config) error {
		c.MaxTokens = n
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

// New builds a client against an Azure OpenAI deployment.
//
// Returns the clients.Client interface to prevent coupling to the concrete
// adapter type.
func New(opts ...Option) (clients.Client, error) {
	var cfg Config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure: %w", clients.ErrMissingAPIKey)
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
		Model:       cfg.Deployment,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		HTTPClient:  cfg.HTTPClient,
		Logger:      cfg.Logger,
		SpanName:    "azure",
	})
}
