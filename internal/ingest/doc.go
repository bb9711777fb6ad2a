// Package ingest turns inbound servo telegrams into fleet registry updates.
//
// The MQTT client invokes handlers on its own goroutines. Those handlers only
// call Enqueue, which never blocks: telegrams go into a bounded queue and are
// dropped (and counted) when it is full. A single consumer started with Run
// drains the queue and is the only writer to the fleet.Registry.
//
// # Telegrams
//
//	servo/{device_id}/status  {"angle":90,"sweeping":false}  replaces the device entry
//	servo/discovery           {"device_id":"dev1"}           recorded, does not register
//
// Any other message type is ignored. A malformed telegram is logged and
// dropped; it never stops the consumer.
package ingest
