package clients

import (
	"context"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
	"github.com/poiesic/maestro/tools"
)

// Client is the shared surface of every model-provider adapter. Adapters
// translate prompts, memory, and tool schemas into the provider's wire
// format and normalize the reply into a core.Response; all reasoning happens
// on the provider side. Implementations must be safe for concurrent use.
type Client interface {
	// Invoke sends the prompt and returns the provider's normalized reply.
	// An empty prompt with no attached media sends only the system prompt
	// and memory turns, which is how a tool exchange is continued after its
	// results have been recorded.
	Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (*core.Response, error)

	// Stream sends the prompt and delivers incremental chunks to fn as they
	// arrive; each chunk carries its text in Delta. It returns the final
	// accumulated response. Returning an error from fn aborts the stream.
	Stream(ctx context.Context, prompt string, fn StreamFunc, opts ...InvokeOption) (*core.Response, error)

	// InvokeStructured constrains the reply to the given JSON schema and
	// returns it decoded into a structured block.
	InvokeStructured(ctx context.Context, prompt string, schema ResponseSchema, opts ...InvokeOption) (*core.Response, error)

	// Model returns the configured model identifier.
	Model() string
}

// StreamFunc receives streaming chunks. The chunk's Delta holds the text
// increment; Content may stay empty until the final response.
type StreamFunc func(chunk *core.Response) error

// ResponseSchema names a JSON schema a structured reply must satisfy.
type ResponseSchema struct {
	Name   string
	Schema *tools.Schema
}

// ToolChoice steers the provider's tool selection. Beyond the constants, any
// other value names the single tool the model must call.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceRequired forces the model to call some tool.
	ToolChoiceRequired ToolChoice = "required"
	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone ToolChoice = "none"
)

// InvokeOptions collects the per-call settings shared by all providers.
// Zero values mean "provider default".
type InvokeOptions struct {
	SystemPrompt string
	Memory       memory.Store
	Tools        []tools.Tool
	ToolChoice   ToolChoice
	Temperature  *float32
	MaxTokens    int
	Media        []core.Media
}

// InvokeOption mutates InvokeOptions.
type InvokeOption func(*InvokeOptions)

// ApplyInvokeOptions folds opts into a fresh InvokeOptions. Providers call
// this at the top of every entry point.
func ApplyInvokeOptions(opts ...InvokeOption) InvokeOptions {
	var o InvokeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSystemPrompt sets the system instruction for this call.
func WithSystemPrompt(prompt string) InvokeOption {
	return func(o *InvokeOptions) { o.SystemPrompt = prompt }
}

// WithMemory includes the session's turns before the prompt.
func WithMemory(store memory.Store) InvokeOption {
	return func(o *InvokeOptions) { o.Memory = store }
}

// WithTools exposes tools the model may call.
func WithTools(ts ...tools.Tool) InvokeOption {
	return func(o *InvokeOptions) { o.Tools = append(o.Tools, ts...) }
}

// WithToolChoice steers tool selection for this call.
func WithToolChoice(choice ToolChoice) InvokeOption {
	return func(o *InvokeOptions) { o.ToolChoice = choice }
}

// WithTemperature overrides the client's configured sampling temperature.
func WithTemperature(t float32) InvokeOption {
	return func(o *InvokeOptions) { o.Temperature = &t }
}

// WithMaxTokens caps the completion length for this call.
func WithMaxTokens(n int) InvokeOption {
	return func(o *InvokeOptions) { o.MaxTokens = n }
}

// WithMedia attaches media to the user message.
func WithMedia(media ...core.Media) InvokeOption {
	return func(o *InvokeOptions) { o.Media = append(o.Media, media...) }
}

// MemoryTurns loads the turns behind o.Memory, returning nil when no memory
// was attached.
func (o *InvokeOptions) MemoryTurns(ctx context.Context) ([]memory.Turn, error) {
	if o.Memory == nil {
		return nil, nil
	}
	return o.Memory.Turns(ctx)
}
