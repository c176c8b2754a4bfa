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


// Package google adapts Google's Gemini models to the clients.Client
// contract through langchaingo's googleai binding. Unlike the
// OpenAI-compatible providers, Gemini accepts PDF and audio attachments
// natively, so this adapter passes every media kind through as inline data.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/tracing"
)

var tracer = otel.Tracer("maestro.clients.google")

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// Config holds the adapter settings.
type Config struct {
	// APIKey authenticates against the Generative Language API.
	APIKey string

	// Model is the Gemini model identifier.
	Model string

	// Temperature is the default sampling temperature for every call.
	Temperature float64

	// MaxTokens caps completion length; zero leaves it to the provider.
	MaxTokens int

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

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(c *Config) error {
		c.Model = model
		return nil
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// Client implements clients.Client over the Gemini API.
type Client struct {
	llm    *googleai.GoogleAI
	model  string
	temp   float64
	maxTok int
	logger *slog.Logger
}

// New builds a client against the Gemini API. The context is used for the
// underlying service handshake.
//
// Returns the clients.Client interface to prevent coupling to this
// provider's concrete type.
func New(ctx context.Context, opts ...Option) (clients.Client, error) {
	cfg := Config{Model: DefaultModel}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: %w", clients.ErrMissingAPIKey)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Client{
		llm:    llm,
		model:  cfg.Model,
		temp:   cfg.Temperature,
		maxTok: cfg.MaxTokens,
		logger: logger.With("component", "google-client"),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Invoke implements clients.Client.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "Invoke", prompt)
	defer span.End()

	messages, callOpts, err := c.buildCall(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("google chat completion: %w", err)
	}
	out, err := responseFrom(resp)
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

	messages, callOpts, err := c.buildCall(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if fn == nil || len(chunk) == 0 {
			return nil
		}
		return fn(&core.Response{Delta: string(chunk)})
	}))

	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("google stream: %w", err)
	}
	return responseFrom(resp)
}

// InvokeStructured implements clients.Client. Gemini's JSON mode constrains
// the output to valid JSON; the schema itself travels as an instruction
// since the binding has no schema parameter.
func (c *Client) InvokeStructured(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "InvokeStructured", prompt)
	defer span.End()

	instruction := "Respond with a single JSON object and nothing else."
	if schema.Schema != nil {
		enc, err := json.Marshal(schema.Schema)
		if err != nil {
			return nil, fmt.Errorf("google: encode schema: %w", err)
		}
		instruction = "Respond with a single JSON object matching this JSON schema, and nothing else: " + string(enc)
	}

	messages, callOpts, err := c.buildCall(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	messages = append([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, instruction),
	}, messages...)
	callOpts = append(callOpts, llms.WithJSONMode())

	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("google structured completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("google: %w", clients.ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	var content map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(choice.Content)), &content); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("google: decode structured response: %w", err)
	}
	return &core.Response{
		Content:    core.Blocks{core.StructuredBlock{Content: content}},
		StopReason: stopReasonFrom(choice.StopReason, false),
		Usage:      usageFrom(choice.GenerationInfo),
	}, nil
}

func (c *Client) startSpan(ctx context.Context, op, prompt string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", "google"),
		attribute.String("llm.model", c.model),
	}
	if tracing.CapturePayloads() {
		attrs = append(attrs, attribute.String("llm.prompt", prompt))
	}
	return tracer.Start(ctx, "google."+op, trace.WithAttributes(attrs...))
}

func (c *Client) buildCall(ctx context.Context, prompt string, o *clients.InvokeOptions) ([]llms.MessageContent, []llms.CallOption, error) {
	var messages []llms.MessageContent
	if o.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, o.SystemPrompt))
	}
	turns, err := o.MemoryTurns(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load memory: %w", err)
	}
	history, err := messagesFromTurns(turns)
	if err != nil {
		return nil, nil, err
	}
	messages = append(messages, history...)

	// An empty prompt without media means "continue from memory" and adds
	// no trailing user message.
	if prompt != "" || len(o.Media) > 0 {
		parts, err := promptParts(prompt, o.Media)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	}

	callOpts := []llms.CallOption{llms.WithModel(c.model)}
	if o.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(float64(*o.Temperature)))
	} else if c.temp > 0 {
		callOpts = append(callOpts, llms.WithTemperature(c.temp))
	}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	} else if c.maxTok > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTok))
	}
	if len(o.Tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(wireTools(o.Tools)))
		if tc := wireToolChoice(o.ToolChoice); tc != nil {
			callOpts = append(callOpts, llms.WithToolChoice(tc))
		}
	}
	return messages, callOpts, nil
}
