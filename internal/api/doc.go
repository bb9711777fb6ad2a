// Package api provides the HTTP REST API and WebSocket server for the servo bridge.
//
// It exposes the fleet view, accepts operator commands and pushes live
// state changes to browsers. The server follows the same lifecycle pattern
// as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Endpoints
//
//	GET  /api/v1/health         liveness, device count, broker state
//	GET  /api/v1/devices        every device that has reported status
//	GET  /api/v1/devices/{id}   one device
//	GET  /api/v1/discovery      ids announced on servo/discovery
//	POST /api/v1/servo/move     move to an angle (202 on hand-off)
//	POST /api/v1/servo/rotate   same as move
//	POST /api/v1/servo/sweep    start or stop a sweep
//	GET  /api/v1/metrics        JSON runtime summary
//	GET  /api/v1/ws             WebSocket, channel "device.state_changed"
//	GET  /metrics               Prometheus exposition
//	GET  /                      operator dashboard
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
