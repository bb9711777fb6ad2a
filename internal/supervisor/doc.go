// Package supervisor owns the bridge's runtime lifecycle.
//
// Start launches the ingestion consumer and makes one attempt to reach the
// broker. If that fails the bridge keeps serving in degraded mode (commands
// answer "transport unavailable") while a background loop retries with
// exponential backoff. Once a session exists the MQTT client reconnects on
// its own and restores the status and discovery subscriptions.
//
// The Supervisor is also the publisher handle given to the command
// dispatcher, so the dispatcher never sees a half-built client.
//
// Stop cancels the retry loop, closes the client so no further telegrams
// are delivered, and waits for the ingestion consumer to exit.
package supervisor
