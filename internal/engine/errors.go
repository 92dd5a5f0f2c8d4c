package engine

import "errors"

var (
	// ErrSessionNotFound is returned by the registry for unknown ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidOrder rejects orders with a non-positive quantity or a
	// coin that is not priced on the last emitted event.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrSessionTerminated rejects commands issued after quit, death
	// or win. Score stays valid.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrAlreadyStarted rejects a second Start on a running session;
	// the event stream has exactly one consumer.
	ErrAlreadyStarted = errors.New("session already started")
)
