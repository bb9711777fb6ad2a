package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/servo-bridge/internal/fleet"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/mqtt"
)

// DefaultQueueSize is used when Options.QueueSize is not positive.
const DefaultQueueSize = 256

// Telegram kinds used for logging and metrics labels.
const (
	KindStatus    = "status"
	KindDiscovery = "discovery"
	KindIgnored   = "ignored"
)

// Rejection reasons used for logging and metrics labels.
const (
	ReasonInvalidTopic     = "invalid_topic"
	ReasonMalformedPayload = "malformed_payload"
	ReasonPanic            = "panic"
)

// Logger defines the logging interface used by the Ingestor.
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

// Recorder receives ingestion counters. *metrics.Metrics satisfies it.
type Recorder interface {
	TelegramReceived(kind string)
	TelegramRejected(reason string)
	TelegramDropped()
	SetDevices(n int)
}

type noopRecorder struct{}

func (noopRecorder) TelegramReceived(string) {}
func (noopRecorder) TelegramRejected(string) {}
func (noopRecorder) TelegramDropped()        {}
func (noopRecorder) SetDevices(int)          {}

// Notifier is told about every status update applied to the registry.
// Implementations must not block.
type Notifier interface {
	DeviceStateChanged(state fleet.DeviceState)
}

// Options configures an Ingestor. The zero value is usable.
type Options struct {
	QueueSize int
	Logger    Logger
	Metrics   Recorder
	Notifier  Notifier

	// Now stamps LastSeen. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of the ingestion pipeline.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Processed     uint64 `json:"processed"`
	Rejected      uint64 `json:"rejected"`
	Dropped       uint64 `json:"dropped"`
	Discovered    int    `json:"discovered"`
}

// telegram is one queued inbound message.
type telegram struct {
	topic   string
	payload []byte
}

// statusPayload is the body of servo/{device_id}/status.
type statusPayload struct {
	Angle    *int  `json:"angle"`
	Sweeping *bool `json:"sweeping"`
}

// discoveryPayload is the body of servo/discovery.
type discoveryPayload struct {
	DeviceID string `json:"device_id"`
}

// Ingestor owns the inbound queue and the single consumer that applies
// telegrams to the registry.
type Ingestor struct {
	registry *fleet.Registry
	queue    chan telegram

	logger   Logger
	metrics  Recorder
	notifier Notifier
	now      func() time.Time

	running atomic.Bool
	stopped atomic.Bool

	processed atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64

	discovered map[string]time.Time
	discMu     sync.RWMutex
}

// New creates an Ingestor writing to registry.
func New(registry *fleet.Registry, opts Options) *Ingestor {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	i := &Ingestor{
		registry:   registry,
		queue:      make(chan telegram, size),
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		now:        opts.Now,
		discovered: make(map[string]time.Time),
	}
	if i.logger == nil {
		i.logger = noopLogger{}
	}
	if i.metrics == nil {
		i.metrics = noopRecorder{}
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i
}

// SetNotifier replaces the state change notifier. Call before Run.
func (i *Ingestor) SetNotifier(n Notifier) {
	i.notifier = n
}

// Enqueue hands a telegram to the consumer without blocking.
//
// It is safe to call from any goroutine. When the queue is full the telegram
// is dropped and ErrQueueFull is returned; after shutdown ErrStopped is
// returned. The payload is copied.
func (i *Ingestor) Enqueue(topic string, payload []byte) error {
	if i.stopped.Load() {
		return ErrStopped
	}

	t := telegram{topic: topic, payload: bytes.Clone(payload)}

	select {
	case i.queue <- t:
		return nil
	default:
		i.dropped.Add(1)
		i.metrics.TelegramDropped()
		i.logger.Warn("ingest queue full, telegram dropped",
			"topic", topic,
			"capacity", cap(i.queue),
		)
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled. It returns nil on shutdown.
//
// Telegrams still queued when ctx is cancelled are discarded, and Enqueue
// rejects new ones from then on.
func (i *Ingestor) Run(ctx context.Context) error {
	if !i.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer i.stopped.Store(true)

	for {
		select {
		case <-ctx.Done():
			i.stopped.Store(true)
			i.discard()
			return nil
		case t := <-i.queue:
			// select picks randomly when both cases are ready.
			if ctx.Err() != nil {
				continue
			}
			i.process(t)
		}
	}
}

// discard empties the queue after shutdown.
func (i *Ingestor) discard() {
	n := 0
	for {
		select {
		case <-i.queue:
			n++
		default:
			if n > 0 {
				i.logger.Info("discarded queued telegrams on shutdown", "count", n)
			}
			return
		}
	}
}

// process applies one telegram, logging instead of propagating failures.
func (i *Ingestor) process(t telegram) {
	defer func() {
		if r := recover(); r != nil {
			i.rejected.Add(1)
			i.metrics.TelegramRejected(ReasonPanic)
			i.logger.Error("panic while ingesting telegram",
				"topic", t.topic,
				"panic", r,
			)
		}
	}()

	if err := i.Handle(t.topic, t.payload); err != nil {
		reason := ReasonMalformedPayload
		if errors.Is(err, ErrInvalidTopic) {
			reason = ReasonInvalidTopic
		}
		i.rejected.Add(1)
		i.metrics.TelegramRejected(reason)
		i.logger.Warn("telegram rejected",
			"topic", t.topic,
			"reason", reason,
			"error", err,
		)
		return
	}
	i.processed.Add(1)
}

// Handle applies a single telegram synchronously.
//
// Run calls it for each queued telegram; it is exported so the per-message
// logic can be exercised directly. It must only be called from one
// goroutine at a time to keep the single-writer guarantee.
func (i *Ingestor) Handle(topic string, payload []byte) error {
	dt, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}

	if dt.IsDiscovery() {
		return i.handleDiscovery(payload)
	}

	if err := fleet.ValidateDeviceID(dt.DeviceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}

	switch dt.MessageType {
	case mqtt.MessageTypeStatus:
		return i.handleStatus(dt.DeviceID, payload)
	default:
		i.metrics.TelegramReceived(KindIgnored)
		i.logger.Debug("ignoring telegram", "topic", topic, "type", dt.MessageType)
		return nil
	}
}

func (i *Ingestor) handleStatus(deviceID string, payload []byte) error {
	var body statusPayload
	if err := decodeObject(payload, &body); err != nil {
		return err
	}
	if body.Angle != nil && (*body.Angle < fleet.MinAngle || *body.Angle > fleet.MaxAngle) {
		return fmt.Errorf("%w: angle %d outside %d-%d", ErrMalformedPayload, *body.Angle, fleet.MinAngle, fleet.MaxAngle)
	}

	i.metrics.TelegramReceived(KindStatus)

	state := fleet.DeviceState{
		DeviceID:     deviceID,
		Online:       true,
		LastSeen:     i.now(),
		CurrentAngle: body.Angle,
		IsSweeping:   body.Sweeping != nil && *body.Sweeping,
	}

	if !i.registry.Upsert(state) {
		return nil
	}
	i.metrics.SetDevices(i.registry.Count())

	i.logger.Debug("device state updated",
		"device_id", deviceID,
		"angle", body.Angle,
		"sweeping", state.IsSweeping,
	)

	i.notify(state)
	return nil
}

// notify forwards an applied update to the notifier. A panicking notifier
// is logged; the update has already been applied to the registry.
func (i *Ingestor) notify(state fleet.DeviceState) {
	if i.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("panic in state notifier",
				"device_id", state.DeviceID,
				"panic", r,
			)
		}
	}()
	i.notifier.DeviceStateChanged(state.Clone())
}

func (i *Ingestor) handleDiscovery(payload []byte) error {
	var body discoveryPayload
	if err := decodeObject(payload, &body); err != nil {
		return err
	}
	if body.DeviceID == "" {
		i.metrics.TelegramReceived(KindIgnored)
		i.logger.Debug("ignoring discovery without device_id")
		return nil
	}
	if err := fleet.ValidateDeviceID(body.DeviceID); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	i.metrics.TelegramReceived(KindDiscovery)

	i.discMu.Lock()
	_, seen := i.discovered[body.DeviceID]
	i.discovered[body.DeviceID] = i.now()
	i.discMu.Unlock()

	if !seen {
		i.logger.Info("device announced", "device_id", body.DeviceID)
	}
	return nil
}

// decodeObject unmarshals a JSON object. Non-object JSON such as null or a
// bare number is malformed.
func decodeObject(payload []byte, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// Discovered returns the IDs announced on the discovery channel, sorted.
func (i *Ingestor) Discovered() []string {
	i.discMu.RLock()
	ids := make([]string, 0, len(i.discovered))
	for id := range i.discovered {
		ids = append(ids, id)
	}
	i.discMu.RUnlock()

	sort.Strings(ids)
	return ids
}

// LastAnnounced returns when id last announced itself on the discovery channel.
func (i *Ingestor) LastAnnounced(id string) (time.Time, bool) {
	i.discMu.RLock()
	defer i.discMu.RUnlock()
	at, ok := i.discovered[id]
	return at, ok
}

// Stats returns queue and outcome counters.
func (i *Ingestor) Stats() Stats {
	i.discMu.RLock()
	discovered := len(i.discovered)
	i.discMu.RUnlock()

	return Stats{
		QueueDepth:    len(i.queue),
		QueueCapacity: cap(i.queue),
		Processed:     i.processed.Load(),
		Rejected:      i.rejected.Load(),
		Dropped:       i.dropped.Load(),
		Discovered:    discovered,
	}
}
