// Package ratelimit keeps a token bucket per key (one per tenant in the
// gateway) so a misbehaving worker fleet cannot saturate the command queue.
package ratelimit
