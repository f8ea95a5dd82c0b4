// Package gateway wires the relay service into the relay-gateway server.
//
// # Overview
//
// The Gateway owns the store, the push dispatcher, the per-tenant poll
// limiter, metrics, and the HTTP and gRPC servers. It listens on plain TCP
// or, when tailscale.enabled is set, on a tsnet node.
//
// # HTTP API
//
//	POST /api/commands                      enqueue (X-Api-Key or body api_key; optional operator bearer)
//	POST /api/poll                          worker poll (X-Api-Key or bearer api key)
//	GET  /api/settings                      tenant feature flags
//	GET  /api/identity                      identity lookup, liveness probe with no parameters
//	GET  /api/admin/tenants/{id}/presence   live workers (operator JWT, moderator or above)
//	GET  /health, /health/ready             liveness and store readiness
//	GET  /metrics                           Prometheus, when metrics.enabled
//
// Errors use a single envelope:
//
//	{"error": {"kind": "AuthenticationMissing", "message": "api key is required"}}
//
// # gRPC
//
// When server.grpc_addr is set the gateway also serves grpc.health.v1. The
// serving status tracks store reachability.
package gateway
