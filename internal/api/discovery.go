package api

import (
	"net/http"
	"time"
)

// DiscoveredDevice is one ID announced on the discovery channel.
type DiscoveredDevice struct {
	DeviceID      string    `json:"device_id"`
	LastAnnounced time.Time `json:"last_announced"`

	// Registered is true once the device has also reported status.
	// Only registered devices accept commands.
	Registered bool `json:"registered"`
}

// handleDiscovery lists devices announced on servo/discovery.
func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	devices := []DiscoveredDevice{}

	if s.discovery != nil {
		for _, id := range s.discovery.Discovered() {
			at, _ := s.discovery.LastAnnounced(id)
			devices = append(devices, DiscoveredDevice{
				DeviceID:      id,
				LastAnnounced: at,
				Registered:    s.registry.Contains(id),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}
