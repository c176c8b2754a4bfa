// Package reindex rebuilds the embeddings of a stored collection with a new
// embedder. Chunks are dumped from the store, re-embedded in concurrent
// batches with retry, and written back under their original IDs, so a
// collection can move to a different embedding model without re-running
// ingestion.
package reindex
