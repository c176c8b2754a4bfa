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


// Package openai adapts OpenAI chat completions to the clients.Client
// contract. The azure, regolo, and mistral packages reuse this adapter with
// their own endpoint configuration, since all three speak the same protocol.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/tracing"
)

var tracer = otel.Tracer("maestro.clients.openai")

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Config holds the adapter settings.
type Config struct {
	// APIKey authenticates against the endpoint.
	APIKey string

	// Model is the model identifier, e.g. "gpt-4o-mini".
	Model string

	// BaseURL overrides the API endpoint. Empty means the vendor default.
	BaseURL string

	// Organization is the optional OpenAI organization ID.
	Organization string

	// Temperature is the default sampling temperature for every call.
	Temperature float32

	// MaxTokens caps completion length; zero leaves it to the provider.
	MaxTokens int

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

// WithModel sets the model identifier.
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

// Client implements clients.Client over the OpenAI chat completions API.
type Client struct {
	api      *openai.Client
	model    string
	temp     float32
	maxTok   int
	spanName string
	logger   *slog.Logger
}

// New builds a client against the OpenAI API.
//
// Returns the clients.Client interface to prevent coupling to this
// provider's concrete type.
func New(opts ...Option) (clients.Client, error) {
	cfg := Config{Model: DefaultModel, SpanName: "openai"}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", clients.ErrMissingAPIKey)
	}
	cc := openai.DefaultConfig(cfg.APIKey)
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
func NewFromClientConfig(cc openai.ClientConfig, cfg Config) (*Client, error) {
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
	return &Client{
		api:      openai.NewClientWithConfig(cc),
		model:    cfg.Model,
		temp:     cfg.Temperature,
		maxTok:   cfg.MaxTokens,
		spanName: cfg.SpanName,
		logger:   logger.With("component", cfg.SpanName+"-client"),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Invoke implements clients.Client.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "Invoke", prompt)
	defer span.End()

	req, err := c.buildRequest(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s chat completion: %w", c.spanName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", c.spanName, clients.ErrEmptyResponse)
	}
	out, err := responseFromChoice(resp.Choices[0], resp.Usage)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if tracing.CapturePayloads() {
		span.SetAttributes(attribute.String("llm.response", out.Text()))
	}
	return out, nil
}

// Stream implements clients.Client.
func (c *Client) Stream(ctx context.Context, prompt string, fn clients.StreamFunc, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "Stream", prompt)
	defer span.End()

	req, err := c.buildRequest(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s stream: %w", c.spanName, err)
	}
	defer stream.Close()

	var (
		text   strings.Builder
		finish openai.FinishReason
		usage  core.TokenUsage
		merger toolCallMerger
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s stream: %w", c.spanName, err)
		}
		if chunk.Usage != nil {
			usage = usageFrom(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
		merger.add(choice.Delta.ToolCalls)
		if choice.Delta.Content == "" {
			continue
		}
		text.WriteString(choice.Delta.Content)
		if fn != nil {
			if err := fn(&core.Response{Delta: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}
	}

	var blocks core.Blocks
	if text.Len() > 0 {
		blocks = append(blocks, core.TextBlock{Content: text.String()})
	}
	callBlocks, err := merger.blocks()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	blocks = append(blocks, callBlocks...)
	return &core.Response{
		Content:    blocks,
		StopReason: core.StopReason(finish),
		Usage:      usage,
	}, nil
}

// InvokeStructured implements clients.Client.
func (c *Client) InvokeStructured(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "InvokeStructured", prompt)
	defer span.End()

	req, err := c.buildRequest(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	name := schema.Name
	if name == "" {
		name = "response"
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Schema: schemaMarshaler{schema.Schema},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s structured completion: %w", c.spanName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", c.spanName, clients.ErrEmptyResponse)
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &content); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s: decode structured response: %w", c.spanName, err)
	}
	return &core.Response{
		Content:    core.Blocks{core.StructuredBlock{Content: content}},
		StopReason: core.StopReason(resp.Choices[0].FinishReason),
		Usage:      usageFrom(resp.Usage),
	}, nil
}

func (c *Client) startSpan(ctx context.Context, op, prompt string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", c.spanName),
		attribute.String("llm.model", c.model),
	}
	if tracing.CapturePayloads() {
		attrs = append(attrs, attribute.String("llm.prompt", prompt))
	}
	return tracer.Start(ctx, c.spanName+"."+op, trace.WithAttributes(attrs...))
}

// buildRequest assembles the wire request: system prompt, memory turns, then
// the user prompt with any attached media.
func (c *Client) buildRequest(ctx context.Context, prompt string, o *clients.InvokeOptions) (openai.ChatCompletionRequest, error) {
	var messages []openai.ChatCompletionMessage
	if o.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.SystemPrompt,
		})
	}
	turns, err := o.MemoryTurns(ctx)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("load memory: %w", err)
	}
	history, err := messagesFromTurns(turns)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	messages = append(messages, history...)

	// An empty prompt without media means "continue from memory" and adds
	// no trailing user message.
	if prompt != "" || len(o.Media) > 0 {
		userMsg, err := userMessage(prompt, o.Media)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		messages = append(messages, userMsg)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if len(o.Tools) > 0 {
		req.Tools = wireTools(o.Tools)
		if tc := wireToolChoice(o.ToolChoice); tc != nil {
			req.ToolChoice = tc
		}
	}
	return req, nil
}

// schemaMarshaler adapts tools.Schema to the json.Marshaler the SDK expects.
type schemaMarshaler struct {
	schema any
}

func (s schemaMarshaler) MarshalJSON() ([]byte, error) {
	if s.schema == nil {
		return []byte(`{"type":"object"}`), nil
	}
	return json.Marshal(s.schema)
}
