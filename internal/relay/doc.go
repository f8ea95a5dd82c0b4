// Package relay implements the command relay: control-plane enqueue with a
// best-effort push notification, and the worker poll that heartbeats, sweeps
// stale presence and claims pending commands.
//
// All coordination between concurrent requests happens in the store. The
// Service keeps no command or presence state between calls.
package relay
