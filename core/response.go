package core

import "strings"

// StopReason reports why a provider stopped generating. Values are passed
// through from the provider; the constants below cover the common
// OpenAI-compatible vocabulary.
type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonToolCalls StopReason = "tool_calls"
	StopReasonLength    StopReason = "length"
)

// TokenUsage aggregates token accounting across one or more model calls.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Cached     int `json:"cached_tokens"`
	Thinking   int `json:"thinking_tokens"`
}

// Add returns the field-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:     u.Prompt + other.Prompt,
		Completion: u.Completion + other.Completion,
		Cached:     u.Cached + other.Cached,
		Thinking:   u.Thinking + other.Thinking,
	}
}

// Response is the normalized reply every model client returns. Content keeps
// the blocks in the order the provider generated them; Delta carries the
// incremental text of a streaming chunk and is empty on final responses.
type Response struct {
	Content    Blocks     `json:"content"`
	Delta      string     `json:"delta,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// Text returns the content of all text blocks joined with newlines.
func (r *Response) Text() string {
	var parts []string
	for _, b := range r.Content {
		if t, ok := b.(TextBlock); ok {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// Thoughts returns the content of all thought blocks joined with newlines.
func (r *Response) Thoughts() string {
	var parts []string
	for _, b := range r.Content {
		if t, ok := b.(ThoughtBlock); ok {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// FirstText returns the content of the first text block, if any.
func (r *Response) FirstText() (string, bool) {
	for _, b := range r.Content {
		if t, ok := b.(TextBlock); ok {
			return t.Content, true
		}
	}
	return "", false
}

// FunctionCalls returns all function call blocks in generation order.
func (r *Response) FunctionCalls() []FunctionCallBlock {
	var calls []FunctionCallBlock
	for _, b := range r.Content {
		if c, ok := b.(FunctionCallBlock); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// StructuredData returns the payloads of all structured blocks in order.
func (r *Response) StructuredData() []map[string]any {
	var out []map[string]any
	for _, b := range r.Content {
		if s, ok := b.(StructuredBlock); ok {
			out = append(out, s.Content)
		}
	}
	return out
}

// IsPureText reports whether every block is a text block. True for an empty
// response.
func (r *Response) IsPureText() bool {
	for _, b := range r.Content {
		if _, ok := b.(TextBlock); !ok {
			return false
		}
	}
	return true
}

// IsPureFunctionCall reports whether every block is a function call block.
func (r *Response) IsPureFunctionCall() bool {
	for _, b := range r.Content {
		if _, ok := b.(FunctionCallBlock); !ok {
			return false
		}
	}
	return true
}
