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


package agent

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
	"github.com/poiesic/maestro/tools"
	"github.com/poiesic/maestro/tracing"
)

// DefaultMaxSteps is the model-call limit used when none is configured.
const DefaultMaxSteps = 10

var tracer = otel.Tracer("maestro.agent")

// Agent drives one conversation loop against a model client. A single model
// call is outstanding at a time per agent; the memory store provides the only
// synchronization.
type Agent struct {
	name         string
	client       clients.Client
	systemPrompt string
	registry     *tools.Registry
	maxSteps     int
	memory       memory.Store
	logger       *slog.Logger
}

// Option is a functional option for Agent.
type Option func(*Agent) error

// WithSystemPrompt sets the instruction sent with every model call.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) error {
		a.systemPrompt = prompt
		return nil
	}
}

// WithTools registers tools the agent may dispatch. Duplicate names are an
// error.
func WithTools(ts ...tools.Tool) Option {
	return func(a *Agent) error {
		for _, t := range ts {
			if err := a.registry.Register(t); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithRegistry replaces the tool registry. A nil registry resets to an empty
// one.
func WithRegistry(r *tools.Registry) Option {
	return func(a *Agent) error {
		if r == nil {
			r = tools.NewRegistry()
		}
		a.registry = r
		return nil
	}
}

// WithMaxSteps caps the number of model calls per Run.
func WithMaxSteps(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			n = 1
		}
		a.maxSteps = n
		return nil
	}
}

// WithMemory sets the session store. A nil store resets to a fresh
// in-process memory.
func WithMemory(store memory.Store) Option {
	return func(a *Agent) error {
		if store == nil {
			store = memory.New()
		}
		a.memory = store
		return nil
	}
}

// WithLogger sets the logger. A nil logger resets to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// New creates an agent around a model client.
func New(name string, client clients.Client, opts ...Option) (*Agent, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if client == nil {
		return nil, ErrClientRequired
	}

	a := &Agent{
		name:     name,
		client:   client,
		registry: tools.NewRegistry(),
		maxSteps: DefaultMaxSteps,
		memory:   memory.New(),
		logger:   slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "agent", "agent", name)

	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Memory returns the session store, for inspection or clearing between
// conversations.
func (a *Agent) Memory() memory.Store { return a.memory }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tools.Registry { return a.registry }

// CanCall exposes other agents as tools of this one. Each agent appears as
// ask_<name>, taking a prompt and answering with the sub-agent's text.
func (a *Agent) CanCall(agents ...*Agent) error {
	for _, sub := range agents {
		if err := a.registry.Register(AsTool(sub)); err != nil {
			return err
		}
	}
	return nil
}

// AsTool wraps an agent as a callable tool named ask_<name>.
func AsTool(sub *Agent) tools.Tool {
	return tools.Tool{
		Name:        "ask_" + sub.name,
		Description: "Ask the " + sub.name + " agent. Use this to delegate work that matches its expertise.",
		Parameters: tools.ObjectSchema(map[string]*tools.Schema{
			"prompt": tools.StringParam("The question or task for the agent."),
		}, "prompt"),
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			prompt, err := tools.String(args, "prompt")
			if err != nil {
				return "", err
			}
			resp, err := sub.Run(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("agent %q: %w", sub.name, err)
			}
			return resp.Text(), nil
		},
	}
}

// Run records the prompt as a user turn and loops: invoke the model with the
// accumulated memory and tool schemas, dispatch any requested tool calls,
// record their results, and invoke again. It returns on the first plain-text
// answer. After maxSteps model calls the last response is returned as is,
// even if it still requests tools.
func (a *Agent) Run(ctx context.Context, prompt string) (*core.Response, error) {
	ctx, span := a.startSpan(ctx, prompt)
	defer span.End()

	if err := a.memory.AddTurn(ctx, memory.NewTurn(core.RoleUser, core.TextBlock{Content: prompt})); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}

	for step := 1; ; step++ {
		a.logger.Debug("invoking model", "step", step)
		resp, err := a.invoke(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.memory.AddTurn(ctx, memory.NewTurn(core.RoleAssistant, resp.Content...)); err != nil {
			return nil, fmt.Errorf("record assistant turn: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return resp, nil
		}
		if step >= a.maxSteps {
			a.logger.Warn("step limit reached with tool calls outstanding", "steps", step)
			return resp, nil
		}

		results := make(core.Blocks, 0, len(calls))
		for _, call := range calls {
			results = append(results, a.dispatch(ctx, call))
		}
		if err := a.memory.AddTurn(ctx, memory.NewTurn(core.RoleAssistant, results...)); err != nil {
			return nil, fmt.Errorf("record tool results: %w", err)
		}
	}
}

// invoke sends one model call carrying the session memory and the tool
// schemas. The empty prompt tells the client to build the request from
// memory alone.
func (a *Agent) invoke(ctx context.Context) (*core.Response, error) {
	opts := []clients.InvokeOption{clients.WithMemory(a.memory)}
	if a.systemPrompt != "" {
		opts = append(opts, clients.WithSystemPrompt(a.systemPrompt))
	}
	if ts := a.registry.List(); len(ts) > 0 {
		opts = append(opts, clients.WithTools(ts...))
	}

	resp, err := a.client.Invoke(ctx, "", opts...)
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}
	return resp, nil
}

// dispatch runs one requested tool call. Tool failures come back as result
// text so the model can react to them; they do not abort the loop.
func (a *Agent) dispatch(ctx context.Context, call core.FunctionCallBlock) core.Block {
	a.logger.Debug("dispatching tool call", "tool", call.Name, "id", call.ID)
	result, err := a.registry.Dispatch(ctx, call.Name, call.Arguments)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		result = "Error: " + err.Error()
	}
	return core.FunctionCallResultBlock{ID: call.ID, Name: call.Name, Result: result}
}

func (a *Agent) startSpan(ctx context.Context, prompt string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("agent.name", a.name),
		attribute.String("llm.model", a.client.Model()),
	}
	if tracing.CapturePayloads() {
		attrs = append(attrs, attribute.String("agent.prompt", prompt))
	}
	return tracer.Start(ctx, "agent.run", trace.WithAttributes(attrs...))
}
