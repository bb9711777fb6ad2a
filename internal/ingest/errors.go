package ingest

import "errors"

// Domain errors for the ingest package.
var (
	// ErrInvalidTopic is returned when a telegram arrives on a topic outside
	// the servo layout.
	ErrInvalidTopic = errors.New("ingest: invalid topic")

	// ErrMalformedPayload is returned when a telegram body cannot be decoded
	// or carries out-of-range values.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrQueueFull is returned by Enqueue when the telegram was dropped.
	ErrQueueFull = errors.New("ingest: queue full")

	// ErrStopped is returned by Enqueue once the consumer has shut down.
	ErrStopped = errors.New("ingest: stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("ingest: already running")
)
