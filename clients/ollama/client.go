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


// Package ollama adapts a local Ollama server to the clients.Client
// contract over its native /api/chat endpoint. Responses stream as
// newline-delimited JSON rather than SSE, and tool call arguments arrive as
// JSON objects rather than strings, so this adapter speaks the REST API
// directly instead of going through an OpenAI compatibility layer.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/tools"
	"github.com/poiesic/maestro/tracing"
)

var tracer = otel.Tracer("maestro.clients.ollama")

// DefaultBaseURL is the local Ollama server address.
const DefaultBaseURL = "http://localhost:11434"

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.2"

// Config holds the adapter settings.
type Config struct {
	// BaseURL is the server address.
	BaseURL string

	// Model is the local model identifier.
	Model string

	// Temperature is the default sampling temperature for every call.
	Temperature float64

	// MaxTokens caps completion length; zero leaves it to the model file.
	MaxTokens int

	// HTTPClient overrides the transport. The default allows five minutes
	// per call since local generation can be slow.
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

// Client implements clients.Client against a local Ollama server.
type Client struct {
	baseURL string
	model   string
	temp    float64
	maxTok  int
	http    *http.Client
	logger  *slog.Logger
}

// New builds a client against an Ollama server. No connectivity check is
// performed; the first call surfaces a dead server.
//
// Returns the clients.Client interface to prevent coupling to this
// provider's concrete type.
func New(opts ...Option) (clients.Client, error) {
	cfg := Config{BaseURL: DefaultBaseURL, Model: DefaultModel}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
		http:    httpClient,
		logger:  logger.With("component", "ollama-client"),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Wire types for /api/chat.

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolDef struct {
	Type     string          `json:"type"`
	Function toolDefFunction `json:"function"`
}

type toolDefFunction struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  *tools.Schema `json:"parameters"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []toolDef       `json:"tools,omitempty"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

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
	var resp chatResponse
	if err := c.post(ctx, req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := responseFrom(resp)
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

	body, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer body.Close()

	var (
		text  strings.Builder
		calls []toolCall
		last  chatResponse
	)
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		calls = append(calls, chunk.Message.ToolCalls...)
		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if fn != nil {
				if err := fn(&core.Response{Delta: chunk.Message.Content}); err != nil {
					return nil, err
				}
			}
		}
		if chunk.Done {
			last = chunk
			break
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ollama stream: %w", err)
	}

	last.Message.Content = text.String()
	last.Message.ToolCalls = calls
	return responseFrom(last), nil
}

// InvokeStructured implements clients.Client. The schema rides in the
// request's format field, which Ollama enforces during generation.
func (c *Client) InvokeStructured(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	ctx, span := c.startSpan(ctx, "InvokeStructured", prompt)
	defer span.End()

	req, err := c.buildRequest(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if schema.Schema != nil {
		enc, err := json.Marshal(schema.Schema)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode schema: %w", err)
		}
		req.Format = enc
	} else {
		req.Format = json.RawMessage(`"json"`)
	}

	var resp chatResponse
	if err := c.post(ctx, req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Message.Content)), &content); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ollama: decode structured response: %w", err)
	}
	return &core.Response{
		Content:    core.Blocks{core.StructuredBlock{Content: content}},
		StopReason: stopReasonFrom(resp.DoneReason, false),
		Usage:      usageFrom(resp),
	}, nil
}

func (c *Client) startSpan(ctx context.Context, op, prompt string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", "ollama"),
		attribute.String("llm.model", c.model),
	}
	if tracing.CapturePayloads() {
		attrs = append(attrs, attribute.String("llm.prompt", prompt))
	}
	return tracer.Start(ctx, "ollama."+op, trace.WithAttributes(attrs...))
}

// buildRequest assembles the wire request. Ollama has no tool choice
// parameter, so that option is ignored here.
func (c *Client) buildRequest(ctx context.Context, prompt string, o *clients.InvokeOptions) (chatRequest, error) {
	var messages []chatMessage
	if o.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: o.SystemPrompt})
	}
	turns, err := o.MemoryTurns(ctx)
	if err != nil {
		return chatRequest{}, fmt.Errorf("load memory: %w", err)
	}
	for _, turn := range turns {
		converted, err := messagesFromTurn(string(turn.Role), turn.Blocks)
		if err != nil {
			return chatRequest{}, err
		}
		messages = append(messages, converted...)
	}

	// An empty prompt without media means "continue from memory" and adds
	// no trailing user message.
	if prompt != "" || len(o.Media) > 0 {
		userMsg := chatMessage{Role: "user", Content: prompt}
		for _, m := range o.Media {
			img, err := imageData(m)
			if err != nil {
				return chatRequest{}, err
			}
			userMsg.Images = append(userMsg.Images, img)
		}
		messages = append(messages, userMsg)
	}

	req := chatRequest{Model: c.model, Messages: messages}
	options := map[string]any{}
	if o.Temperature != nil {
		options["temperature"] = float64(*o.Temperature)
	} else if c.temp > 0 {
		options["temperature"] = c.temp
	}
	if o.MaxTokens > 0 {
		options["num_predict"] = o.MaxTokens
	} else if c.maxTok > 0 {
		options["num_predict"] = c.maxTok
	}
	if len(options) > 0 {
		req.Options = options
	}
	for _, t := range o.Tools {
		req.Tools = append(req.Tools, toolDef{
			Type: "function",
			Function: toolDefFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req, nil
}

// messagesFromTurn converts one turn. Tool results become tool-role
// messages; thought blocks are not replayed.
func messagesFromTurn(role string, blocks core.Blocks) ([]chatMessage, error) {
	var (
		messages []chatMessage
		texts    []string
		images   []string
		calls    []toolCall
	)
	for _, block := range blocks {
		switch b := block.(type) {
		case core.TextBlock:
			if b.Content != "" {
				texts = append(texts, b.Content)
			}
		case core.StructuredBlock:
			enc, err := json.Marshal(b.Content)
			if err != nil {
				return nil, fmt.Errorf("encode structured block: %w", err)
			}
			texts = append(texts, string(enc))
		case core.FunctionCallBlock:
			calls = append(calls, toolCall{Function: toolCallFunction{
				Name:      b.Name,
				Arguments: b.Arguments,
			}})
		case core.FunctionCallResultBlock:
			messages = append(messages, chatMessage{Role: "tool", Content: b.Result})
		case core.MediaBlock:
			img, err := imageData(b.Media)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		case core.ThoughtBlock:
			// Reasoning traces stay local.
		}
	}
	if len(texts) > 0 || len(images) > 0 || len(calls) > 0 {
		messages = append(messages, chatMessage{
			Role:      role,
			Content:   strings.Join(texts, "\n"),
			Images:    images,
			ToolCalls: calls,
		})
	}
	return messages, nil
}

// imageData converts an attachment to the base64 payload Ollama expects.
// The server never fetches URLs, so those are rejected.
func imageData(m core.Media) (string, error) {
	if m.MediaType != core.MediaTypeImage {
		return "", fmt.Errorf("%w: %s", clients.ErrUnsupportedMedia, m.MediaType)
	}
	switch m.SourceType {
	case core.MediaSourceBase64:
		return m.Source, nil
	case core.MediaSourcePath:
		raw, err := os.ReadFile(m.Source)
		if err != nil {
			return "", fmt.Errorf("read media file: %w", err)
		}
		return base64.StdEncoding.EncodeToString(raw), nil
	case core.MediaSourceRaw:
		return base64.StdEncoding.EncodeToString([]byte(m.Source)), nil
	}
	return "", fmt.Errorf("%w: source %s", clients.ErrUnsupportedMedia, m.SourceType)
}

func (c *Client) post(ctx context.Context, req chatRequest, out *chatResponse) error {
	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req chatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: call server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp.Body, nil
}

func responseFrom(resp chatResponse) *core.Response {
	var blocks core.Blocks
	if resp.Message.Content != "" {
		blocks = append(blocks, core.TextBlock{Content: resp.Message.Content})
	}
	for _, call := range resp.Message.ToolCalls {
		args := call.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		blocks = append(blocks, core.FunctionCallBlock{
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return &core.Response{
		Content:    blocks,
		StopReason: stopReasonFrom(resp.DoneReason, len(resp.Message.ToolCalls) > 0),
		Usage:      usageFrom(resp),
	}
}

func stopReasonFrom(reason string, hasCalls bool) core.StopReason {
	if hasCalls {
		return core.StopReasonToolCalls
	}
	switch reason {
	case "", "stop":
		return core.StopReasonStop
	case "length":
		return core.StopReasonLength
	}
	return core.StopReason(reason)
}

func usageFrom(resp chatResponse) core.TokenUsage {
	return core.TokenUsage{
		Prompt:     resp.PromptEvalCount,
		Completion: resp.EvalCount,
	}
}
