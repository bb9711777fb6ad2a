package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/servo-bridge/internal/command"
	"github.com/nerrad567/servo-bridge/internal/fleet"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/servo-bridge/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandDispatcher sends operator commands. *command.Dispatcher satisfies it.
type CommandDispatcher interface {
	Move(ctx context.Context, cmd command.MoveCommand) (command.Result, error)
	Sweep(ctx context.Context, cmd command.SweepCommand) (command.Result, error)
}

// DiscoverySource exposes what the ingestion side has seen.
// *ingest.Ingestor satisfies it.
type DiscoverySource interface {
	Discovered() []string
	LastAnnounced(id string) (time.Time, bool)
	Stats() ingest.Stats
}

// ConnectionStatus reports broker connectivity. *supervisor.Supervisor satisfies it.
type ConnectionStatus interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *fleet.Registry
	Dispatcher CommandDispatcher
	Discovery  DiscoverySource  // optional: /discovery lists nothing without it
	Transport  ConnectionStatus // optional: reported as disconnected without it
	Metrics    *metrics.Metrics // optional: /metrics returns 404 without it
	Hub        *Hub             // optional: created when nil
	Version    string
}

// Server is the HTTP API server for the servo bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *fleet.Registry
	dispatcher CommandDispatcher
	discovery  DiscoverySource
	transport  ConnectionStatus
	metrics    *metrics.Metrics
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("fleet registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		discovery:  deps.Discovery,
		transport:  deps.Transport,
		metrics:    deps.Metrics,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        deps.Hub,
	}

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub. It satisfies ingest.Notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// Binding happens before Start returns, so a port already in use is
// reported here. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// mqttConnected reports broker connectivity, false when unknown.
func (s *Server) mqttConnected(ctx context.Context) bool {
	return s.transport != nil && s.transport.HealthCheck(ctx) == nil
}
