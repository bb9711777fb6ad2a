package command

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/servo-bridge/internal/fleet"
)

// Kind identifies a command type on the wire.
type Kind string

// Command kinds.
const (
	KindMove  Kind = "move"
	KindSweep Kind = "sweep"
)

// SweepAction starts or stops a sweep.
type SweepAction string

// Sweep actions.
const (
	SweepStart SweepAction = "start"
	SweepStop  SweepAction = "stop"
)

// Speed bounds in milliseconds, shared by every command kind.
const (
	MinSpeed = 1
	MaxSpeed = 1000
)

// Defaults applied when a command omits optional fields.
const (
	DefaultMoveSpeed     = 100
	DefaultSweepSpeed    = 50
	DefaultSweepMinAngle = fleet.MinAngle
	DefaultSweepMaxAngle = fleet.MaxAngle
)

// StatusSent is the acknowledgement status of a published command.
const StatusSent = "command_sent"

// Command is implemented by MoveCommand and SweepCommand.
type Command interface {
	Kind() Kind
	Target() string
	Validate() error

	// message builds the wire payload. defaults fill omitted fields.
	message(d defaults) any
}

// MoveCommand moves a servo to an absolute angle.
// The HTTP rotate endpoint uses it too.
type MoveCommand struct {
	DeviceID string `json:"device_id"`

	// Angle is required, 0 to 180 degrees.
	Angle *int `json:"angle"`

	// Speed is optional, 1 to 1000 ms.
	Speed *int `json:"speed,omitempty"`
}

// Kind implements Command.
func (c MoveCommand) Kind() Kind { return KindMove }

// Target implements Command.
func (c MoveCommand) Target() string { return c.DeviceID }

// Validate checks ranges without clamping.
func (c MoveCommand) Validate() error {
	if err := validateDeviceID(c.DeviceID); err != nil {
		return err
	}
	if c.Angle == nil {
		return invalid("angle", "is required")
	}
	if err := validateAngle("angle", *c.Angle); err != nil {
		return err
	}
	return validateSpeed(c.Speed)
}

func (c MoveCommand) message(d defaults) any {
	speed := d.moveSpeed
	if c.Speed != nil {
		speed = *c.Speed
	}
	return moveMessage{Type: string(KindMove), Angle: *c.Angle, Speed: speed}
}

// SweepCommand starts or stops a continuous back-and-forth motion.
type SweepCommand struct {
	DeviceID string      `json:"device_id"`
	Action   SweepAction `json:"action"`

	// MinAngle and MaxAngle default to the full range.
	MinAngle *int `json:"min_angle,omitempty"`
	MaxAngle *int `json:"max_angle,omitempty"`

	// Speed is optional, 1 to 1000 ms.
	Speed *int `json:"speed,omitempty"`
}

// Kind implements Command.
func (c SweepCommand) Kind() Kind { return KindSweep }

// Target implements Command.
func (c SweepCommand) Target() string { return c.DeviceID }

// Validate checks ranges without clamping.
func (c SweepCommand) Validate() error {
	if err := validateDeviceID(c.DeviceID); err != nil {
		return err
	}

	switch c.Action {
	case SweepStart, SweepStop:
	case "":
		return invalid("action", "is required")
	default:
		return invalid("action", "must be %q or %q, got %q", SweepStart, SweepStop, c.Action)
	}

	minAngle, maxAngle := DefaultSweepMinAngle, DefaultSweepMaxAngle
	if c.MinAngle != nil {
		if err := validateAngle("min_angle", *c.MinAngle); err != nil {
			return err
		}
		minAngle = *c.MinAngle
	}
	if c.MaxAngle != nil {
		if err := validateAngle("max_angle", *c.MaxAngle); err != nil {
			return err
		}
		maxAngle = *c.MaxAngle
	}
	if err := validateSpeed(c.Speed); err != nil {
		return err
	}

	if c.Action == SweepStart && minAngle > maxAngle {
		return invalid("min_angle", "must not exceed max_angle (%d > %d)", minAngle, maxAngle)
	}
	return nil
}

func (c SweepCommand) message(d defaults) any {
	if c.Action == SweepStop {
		return sweepStopMessage{Type: string(KindSweep), Action: string(SweepStop)}
	}

	msg := sweepStartMessage{
		Type:     string(KindSweep),
		Action:   string(SweepStart),
		MinAngle: DefaultSweepMinAngle,
		MaxAngle: DefaultSweepMaxAngle,
		Speed:    d.sweepSpeed,
	}
	if c.MinAngle != nil {
		msg.MinAngle = *c.MinAngle
	}
	if c.MaxAngle != nil {
		msg.MaxAngle = *c.MaxAngle
	}
	if c.Speed != nil {
		msg.Speed = *c.Speed
	}
	return msg
}

// Wire payloads published on servo/{device_id}/command.
type (
	moveMessage struct {
		Type  string `json:"type"`
		Angle int    `json:"angle"`
		Speed int    `json:"speed"`
	}

	sweepStartMessage struct {
		Type     string `json:"type"`
		Action   string `json:"action"`
		MinAngle int    `json:"min_angle"`
		MaxAngle int    `json:"max_angle"`
		Speed    int    `json:"speed"`
	}

	sweepStopMessage struct {
		Type   string `json:"type"`
		Action string `json:"action"`
	}
)

// Result acknowledges that a command was handed to the broker.
type Result struct {
	CommandID string          `json:"command_id"`
	DeviceID  string          `json:"device_id"`
	Kind      Kind            `json:"kind"`
	Topic     string          `json:"topic"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	SentAt    time.Time       `json:"sent_at"`
}

func validateDeviceID(id string) error {
	if id == "" {
		return invalid("device_id", "is required")
	}
	if err := fleet.ValidateDeviceID(id); err != nil {
		return invalid("device_id", "is not a valid device id")
	}
	return nil
}

func validateAngle(field string, v int) error {
	if v < fleet.MinAngle || v > fleet.MaxAngle {
		return invalid(field, "must be between %d and %d, got %d", fleet.MinAngle, fleet.MaxAngle, v)
	}
	return nil
}

func validateSpeed(speed *int) error {
	if speed == nil {
		return nil
	}
	if *speed < MinSpeed || *speed > MaxSpeed {
		return invalid("speed", "must be between %d and %d, got %d", MinSpeed, MaxSpeed, *speed)
	}
	return nil
}
