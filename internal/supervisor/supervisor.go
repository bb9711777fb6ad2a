package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/servo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Supervisor.
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

// Recorder receives connection metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ConnectAttempt()
	SetMQTTConnected(connected bool)
}

type noopRecorder struct{}

func (noopRecorder) ConnectAttempt()       {}
func (noopRecorder) SetMQTTConnected(bool) {}

// Transport is the broker session. *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Close() error
}

// Dialer opens a broker session.
type Dialer func(cfg config.MQTTConfig) (Transport, error)

// Ingestor is the receive side. *ingest.Ingestor satisfies it.
type Ingestor interface {
	Enqueue(topic string, payload []byte) error
	Run(ctx context.Context) error
}

// MQTTDialer returns a Dialer backed by mqtt.Connect. logger may be nil.
func MQTTDialer(logger mqtt.Logger) Dialer {
	return func(cfg config.MQTTConfig) (Transport, error) {
		client, err := mqtt.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}

// Supervisor starts, connects and stops the bridge's background work.
type Supervisor struct {
	cfg      config.MQTTConfig
	ingestor Ingestor
	dial     Dialer
	logger   Logger
	metrics  Recorder

	// newBackOff builds the retry schedule for the initial connection.
	newBackOff func() backoff.BackOff

	mu        sync.RWMutex
	transport Transport
	started   bool
	stopping  bool
	cancel    context.CancelFunc
	group     *errgroup.Group

	stopOnce sync.Once
	stopErr  error
}

// New creates a Supervisor. logger and metrics may be nil.
func New(cfg config.MQTTConfig, ingestor Ingestor, dial Dialer, logger Logger, metrics Recorder) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		ingestor: ingestor,
		dial:     dial,
		logger:   logger,
		metrics:  metrics,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	s.newBackOff = s.defaultBackOff
	return s
}

// Start launches the ingestion consumer and connects to the broker.
//
// A failed connection is logged and retried in the background; Start only
// returns an error when called twice.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	g.Go(func() error {
		return s.ingestor.Run(gctx)
	})

	if err := s.connect(); err != nil {
		s.logger.Warn("MQTT broker unavailable, running degraded",
			"broker", fmt.Sprintf("%s:%d", s.cfg.Broker.Host, s.cfg.Broker.Port),
			"error", err,
		)
		g.Go(func() error {
			s.retry(gctx)
			return nil
		})
	}

	return nil
}

// connect dials the broker and subscribes the ingestor to device traffic.
func (s *Supervisor) connect() error {
	s.metrics.ConnectAttempt()

	t, err := s.dial(s.cfg)
	if err != nil {
		return err
	}

	qos := byte(s.cfg.QoS)
	topics := mqtt.Topics{}
	for _, topic := range []string{topics.AllDeviceStatus(), topics.Discovery()} {
		if err := t.Subscribe(topic, qos, s.enqueue); err != nil {
			t.Close()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	t.SetOnConnect(func() {
		s.metrics.SetMQTTConnected(true)
		s.logger.Info("MQTT session established")
	})
	t.SetOnDisconnect(func(err error) {
		s.metrics.SetMQTTConnected(false)
		s.logger.Warn("MQTT connection lost, reconnecting", "error", err)
	})

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		t.Close()
		return ErrStopping
	}
	s.transport = t
	s.mu.Unlock()

	s.metrics.SetMQTTConnected(true)
	s.logger.Info("connected to MQTT broker",
		"broker", fmt.Sprintf("%s:%d", s.cfg.Broker.Host, s.cfg.Broker.Port),
		"client_id", s.cfg.Broker.ClientID,
	)
	return nil
}

// enqueue is the transport handler for status and discovery topics.
// Enqueue counts and logs its own drops, so the error is not propagated.
func (s *Supervisor) enqueue(topic string, payload []byte) error {
	_ = s.ingestor.Enqueue(topic, payload)
	return nil
}

// retry keeps attempting the initial connection until it succeeds, the
// attempt budget runs out or ctx is cancelled.
func (s *Supervisor) retry(ctx context.Context) {
	var b backoff.BackOff = s.newBackOff()
	if limit := s.cfg.Reconnect.MaxAttempts; limit > 0 {
		// The attempt made by Start counts towards the budget.
		b = backoff.WithMaxRetries(b, uint64(limit-1))
	}
	b = backoff.WithContext(b, ctx)

	for attempt := 2; ; attempt++ {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() == nil {
				s.logger.Error("giving up on MQTT broker", "attempts", attempt-1)
			}
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := s.connect()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("MQTT connect attempt failed",
			"attempt", attempt,
			"error", err,
		)
	}
}

func (s *Supervisor) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(s.cfg.Reconnect.InitialDelay) * time.Second
	b.MaxInterval = time.Duration(s.cfg.Reconnect.MaxDelay) * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Publish sends a message through the current session.
// Returns mqtt.ErrNotConnected while the bridge is degraded.
func (s *Supervisor) Publish(topic string, payload []byte, qos byte, retained bool) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	if t == nil {
		return mqtt.ErrNotConnected
	}
	return t.Publish(topic, payload, qos, retained)
}

// IsConnected reports whether a broker session is currently up.
func (s *Supervisor) IsConnected() bool {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	return t != nil && t.IsConnected()
}

// HealthCheck reports whether commands can currently reach the broker.
// It returns mqtt.ErrNotConnected while no session has been established.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	if t == nil {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("mqtt health check: %w", err)
		}
		return mqtt.ErrNotConnected
	}
	return t.HealthCheck(ctx)
}

// Stop shuts everything down and waits for background work to finish.
// It is safe to call more than once and before Start.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		t := s.transport
		cancel := s.cancel
		g := s.group
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		if t != nil {
			if err := t.Close(); err != nil {
				s.logger.Warn("closing MQTT client", "error", err)
			}
		}

		if g != nil {
			s.stopErr = g.Wait()
		}

		s.metrics.SetMQTTConnected(false)
		s.logger.Info("supervisor stopped")
	})
	return s.stopErr
}
