// Package tools defines the callable-tool contract shared by model clients
// and the agent loop: a named function with a JSON-schema parameter
// description, plus a registry that dispatches model-requested calls.
package tools

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Schema is a JSON-schema fragment describing tool parameters. It marshals
// directly into the wire shape every provider expects.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// ObjectSchema builds an object schema from property schemas and the list of
// required property names.
func ObjectSchema(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: properties, Required: required}
}

// StringParam builds a string property schema.
func StringParam(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// IntParam builds an integer property schema.
func IntParam(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

// BoolParam builds a boolean property schema.
func BoolParam(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

// Func is the signature every tool implementation satisfies. The returned
// string is handed back to the model verbatim.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable function exposed to a model.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
	Call        Func
}

// Registry holds the tools available to an agent, preserving registration
// order for deterministic schema lists. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. Duplicate names panic,
// mirroring the fail-fast behavior of registering twice.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool. Registering an empty or duplicate name is an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Call == nil {
		return fmt.Errorf("tool %q has no implementation", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Dispatch runs the named tool with the given arguments.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Call(ctx, args)
}

// String extracts a string argument.
func String(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

// StringOr extracts a string argument, falling back to def when absent.
func StringOr(args map[string]any, key, def string) string {
	if s, err := String(args, key); err == nil {
		return s
	}
	return def
}

// Int extracts an integer argument. JSON numbers arrive as float64 and
// string-encoded integers are accepted, since models are loose typists.
func Int(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("argument %q: expected integer, got %T", key, v)
}

// Bool extracts a boolean argument, defaulting to false when absent.
func Bool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected boolean, got %T", key, v)
	}
	return b, nil
}
