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


// Package retriever turns text queries into ranked chunk results.
//
// A Retriever pairs an embedder with a vector store collection: the query is
// embedded, the store ranks chunks by vector similarity, and the top k come
// back in descending score order. The Run method lets a Retriever stand in
// as a pipeline component, which is how retrieval-augmented flows plug
// search results into a prompt.
package retriever
