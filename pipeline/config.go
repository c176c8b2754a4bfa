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


package pipeline

import (
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Builder constructs a component from its config section. The section holds
// the module's YAML keys minus the type entry.
type Builder func(cfg map[string]any) (Component, error)

// Registry resolves component type names to builders. The zero value is not
// usable; call NewRegistry or DefaultRegistry.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// RegisterComponent binds a type name to a builder. Registering an existing
// name replaces the previous builder.
func (r *Registry) RegisterComponent(typ string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[typ] = builder
}

// Build constructs a component of the given type.
func (r *Registry) Build(typ string, cfg map[string]any) (Component, error) {
	r.mu.RLock()
	builder, ok := r.builders[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponentType, typ)
	}
	return builder(cfg)
}

// LoadFile reads a YAML pipeline definition from disk and assembles it with
// Load.
func LoadFile(path string, registry *Registry) (*FunctionalPipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, registry)
}

// Load parses a YAML pipeline definition and assembles it into a
// FunctionalPipeline using the registry's builders.
//
// The definition has two sections. modules declares named components, each
// with a type resolved through the registry plus builder-specific settings.
// steps lists the pipeline steps in execution order, each referencing a
// module and optionally declaring deps entries with from, key, and as.
// Environment references of the form ${VAR} or ${VAR:default} are expanded
// before parsing; a reference without a default whose variable is unset is
// left as written.
func Load(r io.Reader, registry *Registry) (*FunctionalPipeline, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(expandEnv(string(raw)))); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}

	steps, err := parseSteps(v.Get("steps"))
	if err != nil {
		return nil, err
	}
	modules := v.GetStringMap("modules")

	p := NewFunctional()
	built := make(map[string]Component, len(modules))
	for _, s := range steps {
		component, err := buildModule(registry, modules, built, s.module)
		if err != nil {
			return nil, err
		}
		if err := p.AddStep(s.name, component, s.deps...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type stepSpec struct {
	name   string
	module string
	deps   []Dependency
}

func parseSteps(raw any) ([]stepSpec, error) {
	if raw == nil {
		return nil, fmt.Errorf("pipeline config has no steps")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("steps: expected a list, got %T", raw)
	}
	specs := make([]stepSpec, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("steps[%d]: expected a mapping, got %T", i, item)
		}
		spec := stepSpec{
			name:   asString(entry["name"]),
			module: asString(entry["module"]),
		}
		if spec.name == "" {
			return nil, fmt.Errorf("steps[%d]: a name is required", i)
		}
		if spec.module == "" {
			return nil, fmt.Errorf("step %q: a module is required", spec.name)
		}
		if rawDeps, ok := entry["deps"]; ok {
			deps, err := parseDeps(rawDeps)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", spec.name, err)
			}
			spec.deps = deps
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseDeps(raw any) ([]Dependency, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("deps: expected a list, got %T", raw)
	}
	deps := make([]Dependency, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("deps[%d]: expected a mapping, got %T", i, item)
		}
		dep := Dependency{
			From: asString(entry["from"]),
			Key:  asString(entry["key"]),
			As:   asString(entry["as"]),
		}
		if dep.From == "" {
			return nil, fmt.Errorf("deps[%d]: a from step is required", i)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// buildModule resolves a module reference, constructing the component on
// first use and caching it so steps can share one module instance.
func buildModule(registry *Registry, modules map[string]any, built map[string]Component, name string) (Component, error) {
	// Viper lowercases top-level config keys.
	key := strings.ToLower(name)
	if component, ok := built[key]; ok {
		return component, nil
	}
	section, ok := modules[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("module %q is not declared", name)
	}
	typ := asString(section["type"])
	if typ == "" {
		return nil, fmt.Errorf("module %q: a type is required", name)
	}
	cfg := make(map[string]any, len(section))
	maps.Copy(cfg, section)
	delete(cfg, "type")
	component, err := registry.Build(typ, cfg)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	built[key] = component
	return component, nil
}

var envRefPattern = regexp.MustCompile(`\$\{(\w+)(:([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:default} references with environment
// values. A reference without a default whose variable is unset stays as
// written, which keeps the unresolved name visible in later errors.
func expandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envRefPattern.FindStringSubmatch(match)
		name := groups[1]
		hasDefault := groups[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return groups[3]
		}
		return match
	})
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// cfgString reads a string setting, falling back when absent or empty.
func cfgString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// cfgInt reads an integer setting, accepting the numeric types the YAML
// parser produces.
func cfgInt(cfg map[string]any, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// cfgBool reads a boolean setting.
func cfgBool(cfg map[string]any, key string, fallback bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return fallback
}

// cfgSection reads a nested mapping, returning nil when absent.
func cfgSection(cfg map[string]any, key string) map[string]any {
	if v, ok := cfg[key].(map[string]any); ok {
		return v
	}
	return nil
}
