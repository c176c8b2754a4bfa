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
	"context"
	"fmt"
	"maps"
	"reflect"
)

// Dependency routes a prior step's output into a later step's input.
type Dependency struct {
	// From names the producing step.
	From string

	// Key optionally picks one entry out of a map output. Empty takes the
	// whole output value.
	Key string

	// As is the input key the value arrives under. Empty defaults to From.
	As string
}

type step struct {
	name      string
	component Component
	deps      []Dependency
}

// FunctionalPipeline runs named steps in the order they were added, wiring
// outputs to inputs through declared dependencies.
type FunctionalPipeline struct {
	steps []step
	index map[string]int
}

// NewFunctional returns an empty pipeline.
func NewFunctional() *FunctionalPipeline {
	return &FunctionalPipeline{index: make(map[string]int)}
}

// AddStep appends a step under a unique name. Dependencies must reference
// steps already added, so the declaration order is an execution order.
func (p *FunctionalPipeline) AddStep(name string, component Component, deps ...Dependency) error {
	if name == "" {
		return fmt.Errorf("step name is required")
	}
	if component == nil {
		return fmt.Errorf("step %q: component is required", name)
	}
	if _, exists := p.index[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, name)
	}
	for i := range deps {
		if deps[i].From == "" {
			return fmt.Errorf("step %q: dependency needs a source step", name)
		}
		if _, ok := p.index[deps[i].From]; !ok {
			return fmt.Errorf("step %q: %w: %s", name, ErrUnknownStep, deps[i].From)
		}
		if deps[i].As == "" {
			deps[i].As = deps[i].From
		}
	}
	p.index[name] = len(p.steps)
	p.steps = append(p.steps, step{name: name, component: component, deps: deps})
	return nil
}

// Run executes the steps in order. Every step receives the seed entries plus
// its declared dependencies, and the returned map holds each step's output
// under its name. The first failing step aborts the run.
func (p *FunctionalPipeline) Run(ctx context.Context, seed map[string]any) (map[string]any, error) {
	outputs := make(map[string]any, len(p.steps))
	for _, s := range p.steps {
		in := make(map[string]any, len(seed)+len(s.deps))
		maps.Copy(in, seed)
		for _, dep := range s.deps {
			value, err := extract(outputs[dep.From], dep.From, dep.Key)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", s.name, err)
			}
			in[dep.As] = value
		}
		out, err := s.component.Run(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.name, err)
		}
		outputs[s.name] = out
	}
	return outputs, nil
}

// Len reports the number of steps.
func (p *FunctionalPipeline) Len() int {
	return len(p.steps)
}

// lastOutput returns the final step's output from a run's outputs map.
func (p *FunctionalPipeline) lastOutput(outputs map[string]any) any {
	if len(p.steps) == 0 {
		return nil
	}
	return outputs[p.steps[len(p.steps)-1].name]
}

// extract picks the dependency value out of a step output.
func extract(output any, from, key string) (any, error) {
	if key == "" {
		return output, nil
	}
	m, ok := output.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("output of %q is %T, cannot take key %q", from, output, key)
	}
	value, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("output of %q has no key %q", from, key)
	}
	return value, nil
}

// Predicate decides which side of a Branch runs.
type Predicate func(ctx context.Context, in map[string]any) (bool, error)

// Branch wraps two sub-pipelines as a component that runs exactly one of
// them per invocation. The chosen side is seeded with the branch inputs and
// its outputs map becomes the branch output. A nil side is allowed and
// yields a nil output when chosen.
func Branch(predicate Predicate, ifTrue, ifFalse *FunctionalPipeline) Component {
	return ComponentFunc(func(ctx context.Context, in map[string]any) (any, error) {
		take, err := predicate(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("branch predicate: %w", err)
		}
		side := ifFalse
		if take {
			side = ifTrue
		}
		if side == nil {
			return nil, nil
		}
		return side.Run(ctx, in)
	})
}

// ForEach wraps a sub-pipeline as a component that runs it once per element
// of the slice under source. Each run is seeded with the element under key
// plus the remaining inputs, and the sub-pipeline's final step output is
// collected in element order. The first failing element aborts the whole
// invocation.
func ForEach(source, key string, sub *FunctionalPipeline) Component {
	return ComponentFunc(func(ctx context.Context, in map[string]any) (any, error) {
		coll, ok := in[source]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, source)
		}
		items := reflect.ValueOf(coll)
		if items.Kind() != reflect.Slice {
			return nil, fmt.Errorf("input %q: expected a slice, got %T", source, coll)
		}
		results := make([]any, 0, items.Len())
		for i := 0; i < items.Len(); i++ {
			seed := make(map[string]any, len(in))
			maps.Copy(seed, in)
			delete(seed, source)
			seed[key] = items.Index(i).Interface()
			outputs, err := sub.Run(ctx, seed)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			results = append(results, sub.lastOutput(outputs))
		}
		return results, nil
	})
}
