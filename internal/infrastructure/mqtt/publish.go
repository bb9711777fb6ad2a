package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize bounds outbound messages (1MB). Servo commands are tiny.
const maxPayloadSize = 1 << 20

// Publish hands payload to the broker on a concrete topic.
//
// The topic must not contain wildcards. Publish waits at most
// defaultPublishTimeout for the token; success means the broker accepted
// the message, never that a device acted on it. Failures are not retried.
//
//	topic := mqtt.Topics{}.DeviceCommand("dev1")
//	err := client.Publish(topic, []byte(`{"type":"move","angle":90,"speed":100}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, false); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return awaitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// awaitToken waits for a paho token and wraps a timeout or broker error in sentinel.
func awaitToken(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// checkTopic rejects empty topics. Publish topics may not contain wildcards;
// subscription filters may use + and # only as a whole level, with # last.
func checkTopic(topic string, filter bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if !strings.ContainsAny(level, "+#") {
			continue
		}
		if !filter {
			return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
		}
		if len(level) != 1 || (level == "#" && i != len(levels)-1) {
			return fmt.Errorf("%w: malformed wildcard in filter %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
