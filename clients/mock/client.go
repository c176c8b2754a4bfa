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


// Package mock provides a test double for clients.Client.
package mock

import (
	"context"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
)

// Client is a test double for clients.Client.
// It allows custom behavior injection via function fields.
type Client struct {
	// InvokeFunc is called by Invoke if set.
	// If nil, uses default deterministic behavior.
	InvokeFunc func(ctx context.Context, prompt string, opts ...clients.InvokeOption) (*core.Response, error)

	// StreamFunc is called by Stream if set.
	// If nil, emits the default response as a single chunk.
	StreamFunc func(ctx context.Context, prompt string, fn clients.StreamFunc, opts ...clients.InvokeOption) (*core.Response, error)

	// InvokeStructuredFunc is called by InvokeStructured if set.
	InvokeStructuredFunc func(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error)

	// ModelName is returned by Model. Defaults to "mock".
	ModelName string

	prompts []string
}

// New creates a mock client with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via function fields.
func New() *Client {
	return &Client{}
}

var _ clients.Client = (*Client)(nil)

// Model returns the configured model name.
func (c *Client) Model() string {
	if c.ModelName == "" {
		return "mock"
	}
	return c.ModelName
}

// Invoke echoes the prompt deterministically unless InvokeFunc is set.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...clients.InvokeOption) (*core.Response, error) {
	c.prompts = append(c.prompts, prompt)

	if c.InvokeFunc != nil {
		return c.InvokeFunc(ctx, prompt, opts...)
	}
	return &core.Response{
		Content:    core.Blocks{core.TextBlock{Content: "mock reply to: " + prompt}},
		StopReason: core.StopReasonStop,
	}, nil
}

// Stream emits the Invoke response as a single chunk unless StreamFunc is
// set.
func (c *Client) Stream(ctx context.Context, prompt string, fn clients.StreamFunc, opts ...clients.InvokeOption) (*core.Response, error) {
	if c.StreamFunc != nil {
		c.prompts = append(c.prompts, prompt)
		return c.StreamFunc(ctx, prompt, fn, opts...)
	}
	resp, err := c.Invoke(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(&core.Response{Delta: resp.Text()}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// InvokeStructured returns an empty structured payload unless
// InvokeStructuredFunc is set.
func (c *Client) InvokeStructured(ctx context.Context, prompt string, schema clients.ResponseSchema, opts ...clients.InvokeOption) (*core.Response, error) {
	c.prompts = append(c.prompts, prompt)

	if c.InvokeStructuredFunc != nil {
		return c.InvokeStructuredFunc(ctx, prompt, schema, opts...)
	}
	return &core.Response{
		Content:    core.Blocks{core.StructuredBlock{Content: map[string]any{}}},
		StopReason: core.StopReasonStop,
	}, nil
}

// CallCount returns the number of prompts seen so far.
func (c *Client) CallCount() int {
	return len(c.prompts)
}

// Prompts returns every prompt seen, in call order.
func (c *Client) Prompts() []string {
	out := make([]string, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// Reset clears recorded prompts and injected behavior.
func (c *Client) Reset() {
	c.prompts = nil
	c.InvokeFunc = nil
	c.StreamFunc = nil
	c.InvokeStructuredFunc = nil
}
