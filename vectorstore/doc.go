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


// Package vectorstore defines the vector database abstraction shared by the
// backends in its subpackages.
//
// A Store persists core.Chunk values into named collections and answers
// similarity queries over their embeddings. Index structures, distance
// computation, and durability all belong to the backing database; a backend
// only marshals parameters and unmarshals results. No caching, no retries:
// vendor errors are wrapped and surfaced as-is.
//
// # Constructor Return Type Pattern
//
// Backend constructors return the Store interface to enforce abstraction and
// keep callers portable across backends:
//
//	store, err := milvus.New(ctx, milvus.WithAddress("localhost:19530"))
//	store, err := badger.New(badger.WithPath("/var/lib/maestro"))
//
// # Backends
//
//   - milvus: Milvus server over gRPC, HNSW/COSINE index defaults
//   - qdrant: Qdrant server over gRPC, named vectors
//   - badger: embedded local store for tests, development, and small corpora
//
// # Score Semantics
//
// Scores are the backend's native similarity values and are comparable only
// within one backend. Every backend orders Search results by descending
// similarity; only that ordering is contractual.
//
// # Thread Safety
//
// All Store implementations must be safe for concurrent use.
package vectorstore
