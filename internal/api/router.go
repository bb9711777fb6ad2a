package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/servo-bridge/internal/dashboard"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", s.metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		r.Get("/discovery", s.handleDiscovery)

		r.Route("/servo", func(r chi.Router) {
			r.Post("/move", s.handleMove)
			r.Post("/rotate", s.handleMove)
			r.Post("/sweep", s.handleSweep)
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	// Operator dashboard (embedded via go:embed)
	r.Handle("/*", dashboard.Handler(s.cfg.DashboardDir))

	return r
}

// handleHealth returns the bridge health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"devices":        s.registry.Count(),
		"mqtt_connected": s.mqttConnected(r.Context()),
		"version":        s.version,
	})
}

// wsPath returns the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
