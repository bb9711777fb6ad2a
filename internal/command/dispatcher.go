package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/servo-bridge/internal/infrastructure/mqtt"
)

// Dispatch outcomes used for logging and metrics labels.
const (
	ResultSent        = "sent"
	ResultInvalid     = "invalid"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
	ResultFailed      = "failed"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends a message to the broker. The supervisor satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Membership answers whether a device has ever reported status.
// *fleet.Registry satisfies it.
type Membership interface {
	Contains(deviceID string) bool
}

// Recorder receives dispatch counters. *metrics.Metrics satisfies it.
type Recorder interface {
	CommandDispatched(kind, result string)
}

type noopRecorder struct{}

func (noopRecorder) CommandDispatched(string, string) {}

// Options configures a Dispatcher. The zero value uses package defaults.
type Options struct {
	QoS        byte
	MoveSpeed  int
	SweepSpeed int
	Logger     Logger
	Metrics    Recorder
}

type defaults struct {
	moveSpeed  int
	sweepSpeed int
}

// Dispatcher validates commands against the fleet and publishes them.
// It is safe for concurrent use; commands are not queued or serialised.
type Dispatcher struct {
	registry  Membership
	publisher Publisher
	qos       byte
	defaults  defaults
	logger    Logger
	metrics   Recorder
	now       func() time.Time
	newID     func() string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry Membership, publisher Publisher, opts Options) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		publisher: publisher,
		qos:       opts.QoS,
		defaults: defaults{
			moveSpeed:  opts.MoveSpeed,
			sweepSpeed: opts.SweepSpeed,
		},
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		newID:   func() string { return "cmd-" + uuid.NewString() },
	}
	if d.defaults.moveSpeed == 0 {
		d.defaults.moveSpeed = DefaultMoveSpeed
	}
	if d.defaults.sweepSpeed == 0 {
		d.defaults.sweepSpeed = DefaultSweepSpeed
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.metrics == nil {
		d.metrics = noopRecorder{}
	}
	return d
}

// Move publishes a move command.
func (d *Dispatcher) Move(ctx context.Context, cmd MoveCommand) (Result, error) {
	return d.Dispatch(ctx, cmd)
}

// Sweep publishes a sweep start or stop command.
func (d *Dispatcher) Sweep(ctx context.Context, cmd SweepCommand) (Result, error) {
	return d.Dispatch(ctx, cmd)
}

// Dispatch validates cmd, checks that the target is known and publishes it.
//
// Errors:
//   - *ValidationError (wraps ErrInvalidCommand): a field is out of range
//   - ErrDeviceNotFound: the target has never reported status
//   - ErrTransportUnavailable: no broker session
//   - ErrPublishFailed: the broker did not accept the message
//
// Nothing is published unless all checks pass.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	kind := string(cmd.Kind())

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("dispatch %s: %w", kind, err)
	}

	if err := cmd.Validate(); err != nil {
		d.metrics.CommandDispatched(kind, ResultInvalid)
		return Result{}, err
	}

	deviceID := cmd.Target()
	if !d.registry.Contains(deviceID) {
		d.metrics.CommandDispatched(kind, ResultNotFound)
		return Result{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	payload, err := json.Marshal(cmd.message(d.defaults))
	if err != nil {
		d.metrics.CommandDispatched(kind, ResultFailed)
		return Result{}, fmt.Errorf("encoding %s command: %w", kind, err)
	}

	if !d.publisher.IsConnected() {
		d.metrics.CommandDispatched(kind, ResultUnavailable)
		return Result{}, ErrTransportUnavailable
	}

	topic := mqtt.Topics{}.DeviceCommand(deviceID)
	commandID := d.newID()

	if err := d.publisher.Publish(topic, payload, d.qos, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			d.metrics.CommandDispatched(kind, ResultUnavailable)
			return Result{}, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}
		d.metrics.CommandDispatched(kind, ResultFailed)
		d.logger.Warn("command publish failed",
			"command_id", commandID,
			"device_id", deviceID,
			"kind", kind,
			"error", err,
		)
		return Result{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	d.metrics.CommandDispatched(kind, ResultSent)
	d.logger.Info("command sent",
		"command_id", commandID,
		"device_id", deviceID,
		"kind", kind,
		"topic", topic,
	)

	return Result{
		CommandID: commandID,
		DeviceID:  deviceID,
		Kind:      cmd.Kind(),
		Topic:     topic,
		Status:    StatusSent,
		Payload:   payload,
		SentAt:    d.now().UTC(),
	}, nil
}
