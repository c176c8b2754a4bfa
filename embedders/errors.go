package embedders

import "errors"

// Errors shared by the provider adapters.
var (
	// ErrMissingAPIKey indicates an embedder was constructed without
	// credentials.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrEmptyResponse indicates the provider returned fewer vectors than
	// texts.
	ErrEmptyResponse = errors.New("provider returned no embeddings")
)
