package greenchain

import "errors"

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClientAlreadyStarted is returned when Start is called on a running client
	ErrClientAlreadyStarted = errors.New("client already started")

	// ErrClientNotStarted is returned when Stop is called on a stopped client
	ErrClientNotStarted = errors.New("client not started")
)
