package telegram

import (
	"errors"
	"fmt"
)

// ErrTokenRequired is returned when a bot token is not provided.
var ErrTokenRequired = errors.New("bot token required")

// APIError is returned when the Bot API answers with ok:false or a non-200
// status. Description carries the API's own explanation so it can be shown
// to the model.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error: %s", e.Description)
}
