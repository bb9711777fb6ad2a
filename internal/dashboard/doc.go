// Package dashboard serves the operator web page as embedded assets.
//
// The page lists known servo controllers, sends move and sweep commands
// through the REST API and follows live state over the WebSocket channel
// device.state_changed. Assets are compiled into the binary with go:embed;
// a directory on disk can be served instead while editing them.
package dashboard
