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


package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is used when neither the config nor the environment
// names the service.
const DefaultServiceName = "maestro"

const defaultServiceVersion = "0.1.0"

// Environment variables consulted when the corresponding Config field is
// empty.
const (
	EnvAPIKey    = "MAESTRO_API_KEY"
	EnvProjectID = "MAESTRO_PROJECT_ID"
	EnvEndpoint  = "MAESTRO_OTLP_ENDPOINT"

	envServiceName    = "OTEL_SERVICE_NAME"
	envServiceVersion = "OTEL_SERVICE_VERSION"
	envTraceContent   = "MAESTRO_TRACE_CONTENT"
)

// Config holds exporter settings. Empty fields fall back to the environment
// variables above.
type Config struct {
	// ServiceName identifies this process in exported traces.
	ServiceName string

	// ServiceVersion is reported alongside the service name.
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address as host:port.
	Endpoint string

	// APIKey is sent as a bearer token with every export.
	APIKey string

	// ProjectID is sent as the x-project-id header with every export.
	ProjectID string

	// SampleRate is the fraction of traces to record. Zero means record
	// everything.
	SampleRate float64

	// Insecure disables transport security on the exporter connection.
	Insecure bool

	// CapturePayloads records prompt and response text on spans. Off by
	// default since payloads routinely contain user data.
	CapturePayloads bool
}

var (
	mu         sync.Mutex
	shutdownFn func(context.Context) error

	captureContent atomic.Bool
)

var defaultTracer = otel.Tracer(DefaultServiceName)

// CapturePayloads reports whether spans should carry prompt and response
// text. Adapters consult this before attaching payload attributes.
func CapturePayloads() bool { return captureContent.Load() }

// SetCapturePayloads toggles payload capture without reinitializing the
// exporter.
func SetCapturePayloads(v bool) { captureContent.Store(v) }

// Init installs a global tracer provider that batches spans to the
// configured OTLP collector, authenticated with the API key and project ID.
// It returns a shutdown function that flushes pending spans.
//
// Init is idempotent: subsequent calls return the shutdown function of the
// first successful one.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	mu.Lock()
	defer mu.Unlock()
	if shutdownFn != nil {
		return shutdownFn, nil
	}

	cfg, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithHeaders(map[string]string{
			"authorization": "Bearer " + cfg.APIKey,
			"x-project-id":  cfg.ProjectID,
		}),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0 || cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	captureContent.Store(cfg.CapturePayloads)
	shutdownFn = tp.Shutdown
	return shutdownFn, nil
}

// resolveConfig applies environment fallbacks and defaults. Every missing
// required field is reported in a single error so the operator can fix the
// deployment in one pass.
func resolveConfig(cfg Config) (Config, error) {
	cfg.APIKey = fallback(cfg.APIKey, EnvAPIKey)
	cfg.ProjectID = fallback(cfg.ProjectID, EnvProjectID)
	cfg.Endpoint = fallback(cfg.Endpoint, EnvEndpoint)

	var missing []string
	if cfg.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if cfg.ProjectID == "" {
		missing = append(missing, EnvProjectID)
	}
	if cfg.Endpoint == "" {
		missing = append(missing, EnvEndpoint)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missing, ", "))
	}

	cfg.ServiceName = fallback(cfg.ServiceName, envServiceName)
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	cfg.ServiceVersion = fallback(cfg.ServiceVersion, envServiceVersion)
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = defaultServiceVersion
	}
	if !cfg.CapturePayloads {
		cfg.CapturePayloads = envBool(envTraceContent)
	}
	return cfg, nil
}

func fallback(value, envName string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envName))
}

func envBool(envName string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(envName)))
	return err == nil && v
}

// Start opens a span on the global tracer. Packages with their own tracer
// identity call otel.Tracer directly instead.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return defaultTracer.Start(ctx, name, opts...)
}

// TraceID returns the hex trace ID of the span in ctx, or "" when none is
// recording. Useful for log correlation.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
