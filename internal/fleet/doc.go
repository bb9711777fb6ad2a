// Package fleet holds the bridge's live view of servo controller state.
//
// The Registry is the only shared mutable state in the bridge. It is created
// once by the entry point and handed to the ingestion consumer (the single
// writer) and to the command dispatcher and HTTP API (readers).
//
// An entry exists for a device if and only if at least one status telegram
// has been ingested for it since the process started. Each telegram replaces
// the whole entry; fields are never merged across telegrams and entries are
// never removed.
//
// All reads return copies, so callers can hold on to a DeviceState without
// racing the ingestion consumer.
package fleet
