package clients

import (
	"context"
	"fmt"
)

// Component runs a client as a pipeline step. It reads the prompt under the
// "prompt" input key and outputs the provider's *core.Response.
type Component struct {
	client Client
	opts   []InvokeOption
}

// AsComponent wraps a client for use in a pipeline. The given invoke
// options are applied on every call.
func AsComponent(client Client, opts ...InvokeOption) *Component {
	return &Component{client: client, opts: opts}
}

// Run invokes the client with the input prompt.
func (c *Component) Run(ctx context.Context, in map[string]any) (any, error) {
	v, ok := in["prompt"]
	if !ok {
		return nil, fmt.Errorf("missing input %q", "prompt")
	}
	prompt, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("input %q: expected string, got %T", "prompt", v)
	}
	return c.client.Invoke(ctx, prompt, c.opts...)
}
