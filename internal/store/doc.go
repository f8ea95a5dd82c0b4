// Package store provides persistent storage for the relay gateway.
//
// # Architecture
//
// The store package uses an interface-driven architecture with multiple specialized
// interfaces:
//
//   - TenantStore: tenant records, hashed delivery credentials, push config, flags
//   - CommandStore: the durable per-tenant command queue
//   - PresenceStore: worker heartbeats and TTL sweeps
//   - IdentityStore: chat/game/local account mappings
//   - OperatorStore: control-plane operators and roles
//   - AuditStore: administrative audit trail
//
// SQLStore implements all interfaces in a single struct over database/sql and
// serves both SQLite (modernc.org/sqlite) and Postgres (pgx stdlib). Queries are
// written with ? placeholders and rebound to $n for Postgres.
//
// # Claim semantics
//
// ClaimPending runs one statement:
//
//	UPDATE commands SET status = 'PROCESSED', processed_at = ?
//	WHERE tenant_id = ? AND status = 'PENDING'
//	RETURNING ...
//
// so a command is handed to at most one poller even with many replicas.
//
// # Timestamps
//
// Timestamps are stored as fixed-width UTC TEXT so range predicates such as the
// presence cutoff compare correctly on both engines.
//
// # SQLite Configuration
//
// Pragmas are set through the DSN so every pooled connection gets them:
//
//	_pragma=busy_timeout(5000)
//	_pragma=journal_mode(WAL)
//	_pragma=foreign_keys(1)
//
// # Postgres
//
// The schema lives in migrations/ and is applied with golang-migrate, either
// automatically on startup or through "relay-gateway migrate up|down".
//
// # Testing
//
// Use NewMockStore() for handler unit tests; it supports error injection.
// Use NewSQLiteStore(path) with t.TempDir() for integration tests.
package store
