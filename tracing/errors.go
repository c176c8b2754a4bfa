package tracing

import "errors"

// ErrMissingConfiguration is returned by Init when required settings are
// absent from both the config and the environment. The error message lists
// every missing variable.
var ErrMissingConfiguration = errors.New("missing required configuration")
