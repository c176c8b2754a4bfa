// Package tracing wires the module's OpenTelemetry instrumentation.
//
// Init installs a global tracer provider that exports spans over OTLP gRPC,
// authenticating with an API key and project ID resolved from the config or
// the MAESTRO_* environment variables. Every adapter package in this module
// creates spans through otel.Tracer, so a single Init call at program start
// is enough to light up the whole stack.
//
// Collector offers a second, exporter-free mode: register one with Observe
// and every span finished inside the process is kept in memory, ready to be
// rendered as an indented tree. This is what the CLI uses for --trace
// output, and it composes with Init since both modes hang off the same
// provider.
//
// Payload capture (prompt and response text on spans) is off unless enabled
// through the config or MAESTRO_TRACE_CONTENT, since payloads routinely
// contain user data.
//
// # Usage Example
//
//	shutdown, err := tracing.Init(ctx, tracing.Config{
//		ServiceName: "rag-worker",
//		Endpoint:    "collector.example.com:4317",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer shutdown(context.Background())
package tracing
