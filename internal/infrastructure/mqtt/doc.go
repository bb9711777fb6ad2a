// Package mqtt provides MQTT client connectivity for the servo bridge.
//
// This package manages:
//   - Connection to the broker, with auto-reconnect once a session exists
//   - Fire-and-forget command publishing
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for bridge presence
//   - The servo topic layout and inbound topic parsing
//
// # Architecture
//
// Servo controllers and the bridge never talk directly; the broker
// decouples them.
//
//	HTTP API ↔ Servo Bridge ↔ MQTT Broker ↔ Servo Controllers
//
// # Topic Layout
//
//	servo/{device_id}/status   device → bridge  {"angle":90,"sweeping":false}
//	servo/discovery            device → bridge  {"device_id":"dev1"}
//	servo/{device_id}/command  bridge → device  {"type":"move","angle":90,"speed":100}
//	servobridge/status         bridge presence  (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    // degraded: keep serving, retry later
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStatus(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingestor.Enqueue(topic, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.DeviceCommand("dev1"), payload, 1, false)
package mqtt
