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


// Package telegram exposes the Telegram Bot API to agents: sending and
// editing messages, sending photos and documents, and reading the bot's
// identity. It speaks the REST API directly since Telegram publishes no
// official Go SDK for the bot surface.
package telegram

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
)

// DefaultTimeout bounds each API call when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

// Config holds the bot settings.
type Config struct {
	// Timeout bounds each API call. Ignored when HTTPClient is set.
	Timeout time.Duration

	// BaseURL replaces the whole https://api.telegram.org/bot<token>
	// prefix, token included. Useful for test servers and API proxies.
	BaseURL string

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive: %v", d)
		}
		c.Timeout = d
		return nil
	}
}

// WithBaseURL replaces the API base URL, token segment included.
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

// Bot calls the Telegram Bot API on behalf of an agent. Safe for concurrent
// use.
type Bot struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New builds a bot around the token issued by BotFather.
func New(token string, opts ...Option) (*Bot, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	cfg := Config{Timeout: DefaultTimeout}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org/bot" + token
	} else {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("component", "telegram-bot"),
	}, nil
}

// Message describes one sendMessage call. ParseMode is omitted from the
// request when empty.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Photo describes one sendPhoto call. Photo is a file ID, HTTP URL, or
// upload reference.
type Photo struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Document describes one sendDocument call.
type Document struct {
	ChatID    string `json:"chat_id"`
	Document  string `json:"document"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Edit describes one editMessageText call.
type Edit struct {
	ChatID                string `json:"chat_id"`
	MessageID             int64  `json:"message_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// SendMessage posts text to a chat and returns the API result pretty-printed
// as JSON.
func (b *Bot) SendMessage(ctx context.Context, msg Message) (string, error) {
	return b.post(ctx, "sendMessage", msg)
}

// SendPhoto sends a photo to a chat.
func (b *Bot) SendPhoto(ctx context.Context, photo Photo) (string, error) {
	return b.post(ctx, "sendPhoto", photo)
}

// SendDocument sends a document to a chat.
func (b *Bot) SendDocument(ctx context.Context, doc Document) (string, error) {
	return b.post(ctx, "sendDocument", doc)
}

// EditMessageText rewrites the text of a previously sent message.
func (b *Bot) EditMessageText(ctx context.Context, edit Edit) (string, error) {
	return b.post(ctx, "editMessageText", edit)
}

// GetMe returns the bot's own identity.
func (b *Bot) GetMe(ctx context.Context) (string, error) {
	return b.get(ctx, "getMe")
}

// apiResponse is the envelope every Bot API reply arrives in.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (b *Bot) post(ctx context.Context, endpoint string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	b.logger.Debug("calling telegram api", "endpoint", endpoint)
	return b.do(req)
}

func (b *Bot) get(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/"+endpoint, nil)
	if err != nil {
		return "", err
	}

	b.logger.Debug("calling telegram api", "endpoint", endpoint)
	return b.do(req)
}

// do sends the request and unwraps the API envelope. Failures surface the
// API's description, falling back to the raw body when none is given.
func (b *Bot) do(req *http.Request) (string, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call telegram api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read telegram response: %w", err)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("invalid json from telegram api: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.OK {
		description := env.Description
		if description == "" {
			description = strings.TrimSpace(string(body))
		}
		return "", &APIError{StatusCode: resp.StatusCode, Description: description}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, env.Result, "", "  "); err != nil {
		return "", fmt.Errorf("invalid json from telegram api: %w", err)
	}
	return pretty.String(), nil
}
