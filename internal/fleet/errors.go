package fleet

import "errors"

// Domain errors for the fleet package.
//
//	if errors.Is(err, fleet.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no status has been seen for a device ID.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrInvalidDeviceID is returned when a device ID cannot be used as a topic segment.
	ErrInvalidDeviceID = errors.New("fleet: invalid device id")
)
