package eventbus

import "errors"

var (
	// Subscription errors
	ErrHandlerNil   = errors.New("event handler cannot be nil")
	ErrUnknownTopic = errors.New("unknown event topic")

	// Dispatch errors, only ever logged
	ErrHandlerPanicked = errors.New("event handler panicked")
)
