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
	"strings"
)

type edge struct {
	from      string
	to        string
	targetKey string
}

// ConnectOption configures one edge of a DagPipeline.
type ConnectOption func(*edge)

// WithTargetKey sets the input key the source output arrives under at the
// target module. The default is the source module's name.
func WithTargetKey(key string) ConnectOption {
	return func(e *edge) { e.targetKey = key }
}

// DagPipeline runs modules in dependency order along declared edges. Modules
// with no path between them are independent; their relative order follows
// the order they were added in.
type DagPipeline struct {
	order   []string
	modules map[string]Component
	edges   []edge
}

// NewDag returns an empty graph.
func NewDag() *DagPipeline {
	return &DagPipeline{modules: make(map[string]Component)}
}

// AddModule registers a module under a unique name.
func (d *DagPipeline) AddModule(name string, component Component) error {
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if component == nil {
		return fmt.Errorf("module %q: component is required", name)
	}
	if _, exists := d.modules[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, name)
	}
	d.modules[name] = component
	d.order = append(d.order, name)
	return nil
}

// Connect declares that from's output feeds into to. Both modules must
// already be added. Connecting the same pair twice with different target
// keys delivers the output under both keys.
func (d *DagPipeline) Connect(from, to string, opts ...ConnectOption) error {
	if _, ok := d.modules[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, from)
	}
	if _, ok := d.modules[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, to)
	}
	e := edge{from: from, to: to, targetKey: from}
	for _, opt := range opts {
		opt(&e)
	}
	d.edges = append(d.edges, e)
	return nil
}

// Run executes every module in topological order. inputs seeds individual
// modules by name, and each edge adds the source output under its target
// key. The returned map holds every module's output under the module name;
// the first failing module aborts the run.
func (d *DagPipeline) Run(ctx context.Context, inputs map[string]map[string]any) (map[string]any, error) {
	order, err := d.topoOrder()
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(order))
	for _, name := range order {
		in := make(map[string]any)
		maps.Copy(in, inputs[name])
		for _, e := range d.edges {
			if e.to == name {
				in[e.targetKey] = outputs[e.from]
			}
		}
		out, err := d.modules[name].Run(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", name, err)
		}
		outputs[name] = out
	}
	return outputs, nil
}

// topoOrder sorts modules so every edge source runs before its target,
// keeping insertion order among modules that are ready at the same time.
func (d *DagPipeline) topoOrder() ([]string, error) {
	indegree := make(map[string]int, len(d.order))
	for _, e := range d.edges {
		indegree[e.to]++
	}

	order := make([]string, 0, len(d.order))
	done := make(map[string]bool, len(d.order))
	for len(order) < len(d.order) {
		progressed := false
		for _, name := range d.order {
			if done[name] || indegree[name] > 0 {
				continue
			}
			done[name] = true
			order = append(order, name)
			for _, e := range d.edges {
				if e.from == name {
					indegree[e.to]--
				}
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, name := range d.order {
				if !done[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}
