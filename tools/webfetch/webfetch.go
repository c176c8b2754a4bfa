// Package webfetch gives agents read access to the web: one tool that GETs
// a URL and returns the body. Fetch failures are reported as result text
// rather than errors, so the model can see what happened and try another
// approach.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/poiesic/maestro/tools"
)

// DefaultUserAgent identifies the fetcher to servers that gate on it.
const DefaultUserAgent = "maestro-webfetch/1.0"

// DefaultTimeout bounds each fetch when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

// Config holds the fetcher settings.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds each fetch. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Config) error {
		c.UserAgent = ua
		return nil
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive: %v", d)
		}
		c.Timeout = d
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

// Fetcher GETs pages on behalf of an agent. Safe for concurrent use.
type Fetcher struct {
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// New builds a fetcher.
func New(opts ...Option) (*Fetcher, error) {
	cfg := Config{UserAgent: DefaultUserAgent, Timeout: DefaultTimeout}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		userAgent: cfg.UserAgent,
		http:      httpClient,
		logger:    logger.With("component", "webfetch"),
	}, nil
}

// Fetch GETs the URL and returns the response body. Timeouts, missing
// resources, and server errors come back as messages in the result string.
func (f *Fetcher) Fetch(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "An error occurred: " + err.Error()
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Debug("fetching url", "url", url)
	resp, err := f.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "Request timed out"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "Request timed out"
		}
		return "An error occurred: " + err.Error()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "Resource not found"
	case resp.StatusCode >= 500:
		return fmt.Sprintf("Server error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "An error occurred: " + err.Error()
	}
	return string(body)
}

// Tool returns the fetcher as an agent tool.
func (f *Fetcher) Tool() tools.Tool {
	return tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch the content of a web page by URL.",
		Parameters: tools.ObjectSchema(map[string]*tools.Schema{
			"url": tools.StringParam("The URL to fetch."),
		}, "url"),
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			url, err := tools.String(args, "url")
			if err != nil {
				return "", err
			}
			return f.Fetch(ctx, url), nil
		},
	}
}
