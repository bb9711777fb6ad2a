package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots for the servo protocol.
//
// Device traffic lives under servo/{device_id}/{message_type}. The bridge's
// own presence is published outside that tree so a status subscription
// (servo/+/status) never mistakes the bridge for a device.
const (
	// TopicPrefixServo is the base for all device topics.
	TopicPrefixServo = "servo"

	// TopicPrefixBridge is the base for bridge-owned topics.
	TopicPrefixBridge = "servobridge"

	// MessageTypeStatus is the device status message type segment.
	MessageTypeStatus = "status"

	// MessageTypeCommand is the device command message type segment.
	MessageTypeCommand = "command"

	// DiscoverySegment names the shared discovery channel under the servo root.
	DiscoverySegment = "discovery"
)

// Topics provides builders for servo MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	commandTopic := topics.DeviceCommand("dev1")
//	// Returns: "servo/dev1/command"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceStatus returns the topic a device reports its status on.
//
// Example: servo/dev1/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixServo, deviceID, MessageTypeStatus)
}

// DeviceCommand returns the topic a device receives commands on.
//
// Example: servo/dev1/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixServo, deviceID, MessageTypeCommand)
}

// Discovery returns the shared discovery channel.
//
// Example: servo/discovery
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/%s", TopicPrefixServo, DiscoverySegment)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeStatus returns the bridge presence topic (online/offline, LWT).
//
// Example: servobridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixBridge)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStatus returns a pattern matching every device's status topic.
//
// Pattern: servo/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixServo, MessageTypeStatus)
}

// =============================================================================
// Parsing
// =============================================================================

// DeviceTopic is a parsed inbound servo topic.
type DeviceTopic struct {
	// DeviceID is the second segment. Empty for the discovery channel.
	DeviceID string

	// MessageType is the third segment ("status", "command", ...).
	// For the discovery channel it is "discovery".
	MessageType string
}

// IsDiscovery reports whether the topic is the shared discovery channel.
func (t DeviceTopic) IsDiscovery() bool {
	return t.DeviceID == "" && t.MessageType == DiscoverySegment
}

// ParseDeviceTopic splits an inbound topic into device id and message type.
//
// Accepted shapes are servo/discovery and servo/{device_id}/{type}. Anything
// else, including empty segments, returns ErrInvalidTopic.
func ParseDeviceTopic(topic string) (DeviceTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return DeviceTopic{}, fmt.Errorf("%w: %q has fewer than 2 segments", ErrInvalidTopic, topic)
	}
	if parts[0] != TopicPrefixServo {
		return DeviceTopic{}, fmt.Errorf("%w: %q is outside the %s tree", ErrInvalidTopic, topic, TopicPrefixServo)
	}

	if len(parts) == 2 {
		if parts[1] == DiscoverySegment {
			return DeviceTopic{MessageType: DiscoverySegment}, nil
		}
		return DeviceTopic{}, fmt.Errorf("%w: %q has no message type segment", ErrInvalidTopic, topic)
	}

	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return DeviceTopic{}, fmt.Errorf("%w: %q is not servo/{device_id}/{type}", ErrInvalidTopic, topic)
	}

	return DeviceTopic{DeviceID: parts[1], MessageType: parts[2]}, nil
}
