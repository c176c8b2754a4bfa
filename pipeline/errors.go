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

import "errors"

var (
	// ErrMissingInput reports a component input that was never wired.
	ErrMissingInput = errors.New("missing input")

	// ErrDuplicateStep reports a step or module name used twice.
	ErrDuplicateStep = errors.New("duplicate step")

	// ErrUnknownStep reports a reference to a step or module that was
	// never added.
	ErrUnknownStep = errors.New("unknown step")

	// ErrCycle reports a module graph that cannot be brought into
	// execution order.
	ErrCycle = errors.New("pipeline graph has a cycle")

	// ErrUnknownComponentType reports a config type no builder is
	// registered for.
	ErrUnknownComponentType = errors.New("unknown component type")

	// ErrSplitterRequired is returned when a splitter is not provided.
	ErrSplitterRequired = errors.New("splitter required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")

	// ErrCollectionRequired is returned when a collection name is not
	// provided.
	ErrCollectionRequired = errors.New("collection name required")
)
