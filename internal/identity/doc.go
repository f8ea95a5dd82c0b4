// Package identity resolves accounts between the chat namespace, the game
// namespace and local IDs. It is read-only; mappings are written by
// relay-admin.
package identity
