package supervisor

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("supervisor: already started")

	// ErrStopping is returned when a connection completes after Stop began.
	ErrStopping = errors.New("supervisor: stopping")
)
