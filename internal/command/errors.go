package command

import (
	"errors"
	"fmt"
)

// Domain errors for the command package.
//
//	if errors.Is(err, command.ErrDeviceNotFound) {
//	    // 404
//	}
var (
	// ErrInvalidCommand is wrapped by every *ValidationError.
	ErrInvalidCommand = errors.New("command: invalid command")

	// ErrDeviceNotFound is returned when the target has never reported status.
	ErrDeviceNotFound = errors.New("command: device not found")

	// ErrTransportUnavailable is returned when the broker session is down.
	ErrTransportUnavailable = errors.New("command: transport unavailable")

	// ErrPublishFailed is returned when the broker did not accept the message.
	ErrPublishFailed = errors.New("command: publish failed")
)

// ValidationError describes the first field of a command that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidCommand, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidCommand.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidCommand
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
