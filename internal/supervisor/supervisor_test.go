package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/servo-bridge/internal/fleet"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/servo-bridge/internal/ingest"
)

// MockTransport is a broker-free Transport for testing.
type MockTransport struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []string
	connected    bool
	closeCalls   int
	subscribeErr error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) Publish(topic string, _ []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, topic)
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

func (m *MockTransport) SetOnConnect(func())             {}
func (m *MockTransport) SetOnDisconnect(func(err error)) {}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.connected = false
	return nil
}

// SimulateMessage delivers a message to the handler whose pattern matches topic.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()

	if handler != nil {
		_ = handler(topic, payload)
	}
}

func (m *MockTransport) subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		topics = append(topics, t)
	}
	return topics
}

// topicMatches implements the single-level "+" wildcard.
func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	if len(p) != len(t) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != t[i] {
			return false
		}
	}
	return true
}

// mockDialer fails the first `failures` dials.
type mockDialer struct {
	mu        sync.Mutex
	failures  int
	calls     int
	transport *MockTransport
}

func (d *mockDialer) dial(config.MQTTConfig) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return nil, fmt.Errorf("%w: connection refused", mqtt.ErrConnectionFailed)
	}
	return d.transport, nil
}

func (d *mockDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "supervisor-test"},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newTestSupervisor wires a real ingestor and registry to a mock dialer.
func newTestSupervisor(cfg config.MQTTConfig, d *mockDialer) (*Supervisor, *fleet.Registry) {
	registry := fleet.NewRegistry()
	ing := ingest.New(registry, ingest.Options{})
	s := New(cfg, ing, d.dial, nil, nil)
	s.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return s, registry
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartSubscribesAndIngests(t *testing.T) {
	transport := NewMockTransport()
	d := &mockDialer{transport: transport}
	s, registry := newTestSupervisor(testMQTTConfig(), d)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if !s.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	subs := transport.subscribed()
	for _, want := range []string{"servo/+/status", "servo/discovery"} {
		found := false
		for _, got := range subs {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subscription %q, have %v", want, subs)
		}
	}

	transport.SimulateMessage("servo/dev1/status", []byte(`{"angle":90,"sweeping":false}`))
	waitFor(t, "dev1 in registry", func() bool { return registry.Contains("dev1") })

	state, _ := registry.Get("dev1")
	if state.CurrentAngle == nil || *state.CurrentAngle != 90 {
		t.Errorf("CurrentAngle = %v, want 90", state.CurrentAngle)
	}
}

func TestPublishUsesTransport(t *testing.T) {
	transport := NewMockTransport()
	s, _ := newTestSupervisor(testMQTTConfig(), &mockDialer{transport: transport})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Publish("servo/dev1/command", []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(transport.published) != 1 || transport.published[0] != "servo/dev1/command" {
		t.Errorf("published = %v, want [servo/dev1/command]", transport.published)
	}
}

func TestHealthCheck(t *testing.T) {
	transport := NewMockTransport()
	d := &mockDialer{failures: 1, transport: transport}
	s, _ := newTestSupervisor(testMQTTConfig(), d)
	s.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Hour)
	}

	if err := s.HealthCheck(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() before Start error = %v, want ErrNotConnected", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.HealthCheck(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() while degraded error = %v, want ErrNotConnected", err)
	}

	if err := s.connect(); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after connect error = %v", err)
	}

	transport.mu.Lock()
	transport.connected = false
	transport.mu.Unlock()
	if err := s.HealthCheck(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() after session loss error = %v, want ErrNotConnected", err)
	}
}

func TestStartDegradedWhenBrokerUnavailable(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Reconnect.MaxAttempts = 3
	d := &mockDialer{failures: 1000, transport: NewMockTransport()}
	s, _ := newTestSupervisor(cfg, d)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil (degraded)", err)
	}
	defer s.Stop()

	if s.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
	if err := s.Publish("servo/dev1/command", []byte(`{}`), 1, false); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}

	waitFor(t, "attempt budget", func() bool { return d.callCount() == 3 })
	time.Sleep(20 * time.Millisecond)
	if got := d.callCount(); got != 3 {
		t.Errorf("dial calls = %d, want 3 (budget exhausted)", got)
	}
}

func TestRetryConnectsEventually(t *testing.T) {
	d := &mockDialer{failures: 2, transport: NewMockTransport()}
	s, _ := newTestSupervisor(testMQTTConfig(), d)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitFor(t, "connection", s.IsConnected)
	if got := d.callCount(); got != 3 {
		t.Errorf("dial calls = %d, want 3", got)
	}
}

func TestSubscribeFailureClosesTransport(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Reconnect.MaxAttempts = 1
	transport := NewMockTransport()
	transport.subscribeErr = mqtt.ErrSubscribeFailed
	s, _ := newTestSupervisor(cfg, &mockDialer{transport: transport})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if s.IsConnected() {
		t.Error("IsConnected() = true after subscribe failure")
	}
	if transport.closeCalls != 1 {
		t.Errorf("Close() calls = %d, want 1", transport.closeCalls)
	}
}

func TestStopClosesAndStopsIngestion(t *testing.T) {
	transport := NewMockTransport()
	s, registry := newTestSupervisor(testMQTTConfig(), &mockDialer{transport: transport})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	if transport.closeCalls != 1 {
		t.Errorf("Close() calls = %d, want 1", transport.closeCalls)
	}

	// A late delivery from the transport must not reach the registry.
	transport.SimulateMessage("servo/dev9/status", []byte(`{"angle":10}`))
	time.Sleep(20 * time.Millisecond)
	if registry.Contains("dev9") {
		t.Error("telegram processed after Stop()")
	}
}

func TestStopCancelsRetryLoop(t *testing.T) {
	d := &mockDialer{failures: 1 << 30, transport: NewMockTransport()}
	s, _ := newTestSupervisor(testMQTTConfig(), d)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "retries", func() bool { return d.callCount() > 2 })

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}

	calls := d.callCount()
	time.Sleep(20 * time.Millisecond)
	if d.callCount() != calls {
		t.Error("dialing continued after Stop()")
	}
}

func TestStartTwice(t *testing.T) {
	s, _ := newTestSupervisor(testMQTTConfig(), &mockDialer{transport: NewMockTransport()})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopBeforeStart(t *testing.T) {
	s, _ := newTestSupervisor(testMQTTConfig(), &mockDialer{transport: NewMockTransport()})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v", err)
	}
}

func TestParentContextCancelStopsIngestion(t *testing.T) {
	transport := NewMockTransport()
	s, registry := newTestSupervisor(testMQTTConfig(), &mockDialer{transport: transport})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	transport.SimulateMessage("servo/dev1/status", []byte(`{"angle":10}`))
	time.Sleep(20 * time.Millisecond)
	if registry.Contains("dev1") {
		t.Error("telegram processed after cancellation")
	}
}
