// Package command validates operator commands and publishes them to servo
// controllers.
//
// There is one wire protocol. Every command goes to servo/{device_id}/command
// as a JSON object whose "type" field selects the action:
//
//	{"type":"move","angle":90,"speed":100}
//	{"type":"sweep","action":"start","min_angle":0,"max_angle":180,"speed":50}
//	{"type":"sweep","action":"stop"}
//
// A command is rejected without publishing when a field is out of range or
// the target device has never reported status. A successful Dispatch means
// the broker accepted the message; it says nothing about the device acting
// on it. Failed publishes are not retried.
package command
