// ABOUTME: SQLite backend for SQLStore using modernc.org/sqlite
// ABOUTME: Creates the schema inline on open; pragmas are applied per connection via the DSN

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteDSN appends per-connection pragmas. database/sql pools connections, so
// a one-off PRAGMA statement would only configure whichever connection ran it.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return ":memory:?_pragma=foreign_keys(1)"
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every :memory: connection is its own database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{
		db:      db,
		dialect: DialectSQLite,
		logger:  logger,
	}

	if err := s.createSQLiteSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSQLiteSchema creates the database tables if they don't exist
func (s *SQLStore) createSQLiteSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			api_key_hash       TEXT NOT NULL UNIQUE,
			push_routing_key   TEXT,
			push_secret        TEXT,
			flag_kicks         BOOLEAN NOT NULL DEFAULT 1,
			flag_bans          BOOLEAN NOT NULL DEFAULT 1,
			flag_announcements BOOLEAN NOT NULL DEFAULT 1,
			flag_shutdowns     BOOLEAN NOT NULL DEFAULT 0,
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS commands (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			tenant_id    TEXT NOT NULL REFERENCES tenants(id),
			name         TEXT NOT NULL,
			args_json    TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'PENDING',
			created_at   TEXT NOT NULL,
			processed_at TEXT,

			CHECK (status IN ('PENDING', 'PROCESSED'))
		);

		CREATE INDEX IF NOT EXISTS idx_commands_tenant_status
			ON commands(tenant_id, status, seq);

		CREATE TABLE IF NOT EXISTS presence (
			tenant_id      TEXT NOT NULL REFERENCES tenants(id),
			instance_id    TEXT NOT NULL,
			load_metric    INTEGER NOT NULL DEFAULT 0,
			last_heartbeat TEXT NOT NULL,

			PRIMARY KEY (tenant_id, instance_id)
		);

		CREATE INDEX IF NOT EXISTS idx_presence_tenant_heartbeat
			ON presence(tenant_id, last_heartbeat);

		CREATE TABLE IF NOT EXISTS identity_mappings (
			local_id      TEXT PRIMARY KEY,
			chat_id       TEXT UNIQUE,
			chat_username TEXT,
			game_id       TEXT UNIQUE,
			game_username TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_identity_chat_username
			ON identity_mappings(lower(chat_username));
		CREATE INDEX IF NOT EXISTS idx_identity_game_username
			ON identity_mappings(lower(game_username));

		CREATE TABLE IF NOT EXISTS operators (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'active',
			created_at   TEXT NOT NULL,

			CHECK (status IN ('active', 'disabled'))
		);

		CREATE TABLE IF NOT EXISTS roles (
			operator_id TEXT NOT NULL REFERENCES operators(id),
			role        TEXT NOT NULL,
			created_at  TEXT NOT NULL,

			PRIMARY KEY (operator_id, role),
			CHECK (role IN ('owner', 'admin', 'moderator'))
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id          TEXT PRIMARY KEY,
			actor_operator_id TEXT NOT NULL,
			action            TEXT NOT NULL,
			target_type       TEXT NOT NULL,
			target_id         TEXT NOT NULL,
			ts                TEXT NOT NULL,
			detail_json       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
