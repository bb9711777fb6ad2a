package fleet

import (
	"fmt"
	"strings"
	"time"
)

// Angle bounds reported and accepted by servo controllers, in degrees.
const (
	MinAngle = 0
	MaxAngle = 180
)

// maxDeviceIDLength caps device IDs so topics stay well inside broker limits.
const maxDeviceIDLength = 128

// DeviceState is the bridge's last known view of one servo controller.
type DeviceState struct {
	DeviceID string    `json:"device_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`

	// CurrentAngle is nil when the last telegram did not report an angle.
	CurrentAngle *int `json:"current_angle"`

	IsSweeping bool `json:"is_sweeping"`
}

// Clone returns a deep copy of the state.
func (s DeviceState) Clone() DeviceState {
	out := s
	if s.CurrentAngle != nil {
		angle := *s.CurrentAngle
		out.CurrentAngle = &angle
	}
	return out
}

// Stats summarises the registry for health and metrics endpoints.
type Stats struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Sweeping int `json:"sweeping"`
}

// ValidateDeviceID checks that id is usable as a single MQTT topic segment.
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if len(id) > maxDeviceIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidDeviceID, maxDeviceIDLength)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidDeviceID, id)
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
