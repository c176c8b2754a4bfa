// Package pipeline composes components into ingestion and processing flows.
//
// Three orchestrators cover the common shapes:
//   - IngestionPipeline: split, embed, and store documents, with a worker
//     pool for embedding batches
//   - FunctionalPipeline: named steps with declared dependency wiring, plus
//     Branch and ForEach combinators
//   - DagPipeline: modules connected by explicit edges, run in topological
//     order
//
// Components implement a single Run method over string-keyed inputs. The
// YAML loader assembles FunctionalPipelines from config files, resolving
// component types through a Registry seeded by DefaultRegistry.
package pipeline
