//go:build integration

package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/servo-bridge/internal/infrastructure/config"
)

// Broker-backed tests. These require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func TestIntegration_Connect(t *testing.T) {
	client, err := Connect(integrationConfig("servo-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestIntegration_ConnectInvalidBroker(t *testing.T) {
	cfg := integrationConfig("servo-int-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseIdempotent(t *testing.T) {
	client, err := Connect(integrationConfig("servo-int-close"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("servo/dev1/command", []byte("{}"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("servo-int-sub-track"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{Topics{}.AllDeviceStatus(), Topics{}.Discovery()}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	client.subMu.RLock()
	defer client.subMu.RUnlock()
	for _, topic := range topics {
		if _, ok := client.subscriptions[topic]; !ok {
			t.Errorf("subscription %s not tracked", topic)
		}
	}
}

// TestIntegration_StatusRoundtrip publishes a device status and checks that the
// wildcard subscription delivers it with the concrete topic.
func TestIntegration_StatusRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("servo-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("servo-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	type message struct {
		topic   string
		payload string
	}
	received := make(chan message, 1)
	var once sync.Once

	err = sub.Subscribe(Topics{}.AllDeviceStatus(), 1, func(topic string, payload []byte) error {
		once.Do(func() {
			received <- message{topic: topic, payload: string(payload)}
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	want := `{"angle":90,"sweeping":false}`
	if err := pub.Publish(Topics{}.DeviceStatus("int-dev"), []byte(want), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.topic != "servo/int-dev/status" {
			t.Errorf("topic = %q, want servo/int-dev/status", msg.topic)
		}
		if msg.payload != want {
			t.Errorf("payload = %q, want %q", msg.payload, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
