package fleet

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Registry is the in-memory map of device ID to last known state.
//
// All public methods are thread-safe. Stored states are copied on the way in
// and on the way out.
type Registry struct {
	devices map[string]DeviceState
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]DeviceState),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Upsert replaces the entry for state.DeviceID wholesale.
//
// The update is applied only when state.LastSeen is not before the stored
// LastSeen, so a late telegram cannot roll the view back. It reports whether
// the entry was written. States with an invalid device ID are ignored.
func (r *Registry) Upsert(state DeviceState) bool {
	if err := ValidateDeviceID(state.DeviceID); err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[state.DeviceID]; ok && state.LastSeen.Before(existing.LastSeen) {
		r.logger.Debug("stale device state ignored",
			"device_id", state.DeviceID,
			"last_seen", existing.LastSeen,
			"incoming", state.LastSeen,
		)
		return false
	}

	r.devices[state.DeviceID] = state.Clone()
	return true
}

// Get returns a copy of the state for id.
func (r *Registry) Get(id string) (DeviceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.devices[id]
	if !ok {
		return DeviceState{}, false
	}
	return state.Clone(), true
}

// Lookup is Get with an error result for callers that propagate errors.
// Returns ErrDeviceNotFound when no status has been seen for id.
func (r *Registry) Lookup(id string) (DeviceState, error) {
	state, ok := r.Get(id)
	if !ok {
		return DeviceState{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return state, nil
}

// GetAll returns a snapshot of every entry, sorted by device ID.
func (r *Registry) GetAll() []DeviceState {
	r.mu.RLock()
	states := make([]DeviceState, 0, len(r.devices))
	for _, s := range r.devices {
		states = append(states, s.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].DeviceID < states[j].DeviceID
	})
	return states
}

// Contains reports whether a status has been seen for id.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Stats returns counts of known, online and sweeping devices.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.devices)}
	for _, s := range r.devices {
		if s.Online {
			stats.Online++
		}
		if s.IsSweeping {
			stats.Sweeping++
		}
	}
	return stats
}
