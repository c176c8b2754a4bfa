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


// Package watsonx adapts IBM watsonx.ai foundation models to the
// clients.Client contract. The chat payload is OpenAI-shaped, but
// authentication goes through IBM Cloud IAM: the API key is exchanged for a
// bearer token that this adapter caches and refreshes before expiry.
//
// Streaming and structured output are not offered by this adapter; both
// return clients.ErrNotSupported.
package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/tools"
	"github.com/poiesic/maestro/tracing"
)

var tracer = otel.Tracer("maestro.clients.watsonx")

// DefaultModel is used when no model is configured.
const DefaultModel = "ibm/granite-3-3-8b-instruct"

// DefaultTokenURL is the IBM Cloud IAM token exchange endpoint.
const DefaultTokenURL = "https://iam.cloud.ibm.com/identity/token"

// DefaultAPIVersion is the watsonx.ai API version query parameter.
const DefaultAPIVersion = "2024-10-08"

// Config holds the adapter settings.
type Config struct {
	// APIKey is the IBM Cloud API key exchanged for a bearer token.
	APIKey string

	// URL is the regional service endpoint, e.g.
	// "https://us-south.ml.cloud.ibm.com".
	URL string

	// ProjectID scopes every request to a watsonx project.
	ProjectID string

	// Model is the foundation model identifier.
	Model string

	// APIVersion overrides the version query parameter.
	APIVersion string

	// TokenURL overrides the IAM endpoint, mainly for tests.
	TokenURL string

	// Temperature is the default sampling temperature for every call.
	Temperature *float64

	// MaxTokens caps completion length; zero leaves it to the provider.
	MaxTokens int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithAPIKey sets the IBM Cloud API key.
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.APIKey = key
		return nil
	}
}

// WithURL sets the regional service endpoint.
func WithURL(u string) Option {
	return func(c *Config) error {
		c.URL = u
		return nil
	}
}

// WithProjectID sets the watsonx project.
func WithProjectID(id string) Option {
	return func(c *Config) error {
		c.ProjectID = id
		return nil
	}
}

// WithModel sets the foundation model identifier.
func WithModel(model string) Option {
	return func(c *Config) error {
		c.Model = model
		return nil
	}
}

// WithAPIVersion overrides the version query parameter.
func WithAPIVersion(version string) Option {
	return func(c *Config) error {
		c.APIVersion = version
		return nil
	}
}

// WithTokenURL overrides the IAM token endpoint.
func WithTokenURL(u string) Option {
	return func(c *Config) error {
		c.TokenURL = u
		return nil
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) error {
		if t < 0 {
			return fmt.Errorf("temperature must not be negative: %v", t)
		}
		c.Temperature = &t
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

// Client implements clients.Client against the watsonx.ai chat API.
type Client struct {
	apiKey     string
	endpoint   string
	projectID  string
	model      string
	apiVersion string
	tokenURL   string
	temp       *float64
	maxTok     int
	http       *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	token string
	exp   time.Time
}

// New builds a client against a watsonx.ai deployment.
//
// Returns the clients.Client interface to prevent coupling to this
// provider's concrete type.
func New(opts ...Option) (clients.Client, error) {
	cfg := Config{
		Model:      DefaultModel,
		APIVersion: DefaultAPIVersion,
		TokenURL:   DefaultTokenURL,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("watsonx: %w", clients.ErrMissingAPIKey)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("watsonx: url is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("watsonx: project id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.URL, "/"),
		projectID:  cfg.ProjectID,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		tokenURL:   cfg.TokenURL,
		temp:       cfg.Temperature,
		maxTok:     cfg.MaxTokens,
		http:       httpClient,
		logger:     logger.With("component", "watsonx-client"),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Invoke implements clients.Client.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...clients.InvokeOption) (*core.Response, error) {
	o := clients.ApplyInvokeOptions(opts...)
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", "watsonx"),
		attribute.String("llm.model", c.model),
	}
	if tracing.CapturePayloads() {
		attrs = append(attrs, attribute.String("llm.prompt", prompt))
	}
	ctx, span := tracer.Start(ctx, "watsonx.Invoke", trace.WithAttributes(attrs...))
	defer span.End()

	req, err := c.buildRequest(ctx, prompt, &o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := c.chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out, err := c.parseResponse(resp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if tracing.CapturePayloads() {
		span.SetAttributes(attribute.String("llm.response", out.Text()))
	}
	return out, nil
}

// Stream implements clients.Client. Not offered by this adapter.
func (c *Client) Stream(ctx context.Context, prompt string, fn clients.StreamFunc, opts ...clients.InvokeOption) (*core.Response, error) {
	return nil, fmt.Errorf("watsonx: streaming: %w", clients.ErrNotSupported)
}

// InvokeStructured implements clients.Client. Not offered by this adapter.
func (c *Client) InvokeStructured(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error) {
	return nil, fmt.Errorf("watsonx: structured output: %w", clients.ErrNotSupported)
}

// Wire types for /ml/v1/text/chat.

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

// toolCallFunction keeps arguments raw since watsonx returns them either as
// a JSON string or as an object, depending on the model.
type toolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
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

type namedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatRequest struct {
	ModelID          string           `json:"model_id"`
	ProjectID        string           `json:"project_id"`
	Messages         []chatMessage    `json:"messages"`
	Tools            []toolDef        `json:"tools,omitempty"`
	ToolChoiceOption string           `json:"tool_choice_option,omitempty"`
	ToolChoice       *namedToolChoice `json:"tool_choice,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) buildRequest(ctx context.Context, prompt string, o *clients.InvokeOptions) (chatRequest, error) {
	if len(o.Media) > 0 {
		return chatRequest{}, fmt.Errorf("watsonx: %w", clients.ErrUnsupportedMedia)
	}

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
	// An empty prompt means "continue from memory" and adds no trailing
	// user message.
	if prompt != "" {
		messages = append(messages, chatMessage{Role: "user", Content: prompt})
	}

	req := chatRequest{
		ModelID:   c.model,
		ProjectID: c.projectID,
		Messages:  messages,
		MaxTokens: c.maxTok,
	}
	if o.Temperature != nil {
		t := float64(*o.Temperature)
		req.Temperature = &t
	} else if c.temp != nil {
		req.Temperature = c.temp
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if len(o.Tools) > 0 {
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
		switch o.ToolChoice {
		case "", clients.ToolChoiceAuto, clients.ToolChoiceRequired, clients.ToolChoiceNone:
			if o.ToolChoice != "" {
				req.ToolChoiceOption = string(o.ToolChoice)
			}
		default:
			named := &namedToolChoice{Type: "function"}
			named.Function.Name = string(o.ToolChoice)
			req.ToolChoice = named
		}
	}
	return req, nil
}

// messagesFromTurn converts one turn. Tool results become tool-role
// messages with their call ID; thought blocks are not replayed.
func messagesFromTurn(role string, blocks core.Blocks) ([]chatMessage, error) {
	var (
		messages []chatMessage
		texts    []string
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
			args, err := json.Marshal(b.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode tool call %q arguments: %w", b.Name, err)
			}
			quoted, err := json.Marshal(string(args))
			if err != nil {
				return nil, fmt.Errorf("encode tool call %q arguments: %w", b.Name, err)
			}
			calls = append(calls, toolCall{
				ID:   b.ID,
				Type: "function",
				Function: toolCallFunction{
					Name:      b.Name,
					Arguments: quoted,
				},
			})
		case core.FunctionCallResultBlock:
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: b.ID,
				Content:    b.Result,
			})
		case core.MediaBlock:
			return nil, fmt.Errorf("watsonx: %w", clients.ErrUnsupportedMedia)
		case core.ThoughtBlock:
			// Reasoning traces stay local.
		}
	}
	if len(texts) > 0 || len(calls) > 0 {
		messages = append(messages, chatMessage{
			Role:      role,
			Content:   strings.Join(texts, "\n"),
			ToolCalls: calls,
		})
	}
	return messages, nil
}

func (c *Client) chat(ctx context.Context, req chatRequest) (chatResponse, error) {
	bearer, err := c.bearer(ctx)
	if err != nil {
		return chatResponse{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("watsonx: encode request: %w", err)
	}
	endpoint := c.endpoint + "/ml/v1/text/chat?version=" + url.QueryEscape(c.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return chatResponse{}, fmt.Errorf("watsonx: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return chatResponse{}, fmt.Errorf("watsonx: call service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return chatResponse{}, fmt.Errorf("watsonx: service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chatResponse{}, fmt.Errorf("watsonx: decode response: %w", err)
	}
	return out, nil
}

// bearer returns a cached IAM token, exchanging the API key for a fresh one
// when the cached token is within a minute of expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.exp) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("watsonx: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("watsonx: exchange api key: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("watsonx: token exchange returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("watsonx: decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("watsonx: token exchange returned an empty token")
	}

	c.token = token.AccessToken
	c.exp = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	c.logger.Debug("exchanged api key for iam token", "expires_in", token.ExpiresIn)
	return c.token, nil
}

// parseResponse normalizes the first choice: content text first, then tool
// calls in provider order. Unparseable tool arguments degrade to an empty
// map with a warning, matching how partial model output is handled
// elsewhere.
func (c *Client) parseResponse(resp chatResponse) (*core.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("watsonx: %w", clients.ErrEmptyResponse)
	}
	choice := resp.Choices[0]

	var blocks core.Blocks
	if choice.Message.Content != "" {
		blocks = append(blocks, core.TextBlock{Content: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		if call.Type != "function" {
			continue
		}
		blocks = append(blocks, core.FunctionCallBlock{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: c.parseArguments(call.Function.Name, call.Function.Arguments),
		})
	}
	return &core.Response{
		Content:    blocks,
		StopReason: core.StopReason(choice.FinishReason),
		Usage: core.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) parseArguments(name string, raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &args); err == nil {
			return args
		}
	}
	c.logger.Warn("failed to parse tool call arguments", "tool", name, "raw", string(raw))
	return map[string]any{}
}
