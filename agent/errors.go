package agent

import "errors"

var (
	// ErrNameRequired is returned when an agent name is not provided.
	ErrNameRequired = errors.New("agent name required")

	// ErrClientRequired is returned when a model client is not provided.
	ErrClientRequired = errors.New("model client required")
)
