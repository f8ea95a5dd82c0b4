// ABOUTME: Postgres backend for SQLStore using pgx through database/sql
// ABOUTME: Schema is managed by golang-migrate from embedded SQL files

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationFS embeds the Postgres migrations.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// ErrNoChange is returned by Migrate when the schema is already at the target version
var ErrNoChange = migrate.ErrNoChange

// NewPostgresStore opens a Postgres-backed store. When migrateUp is set the
// embedded migrations are applied before the store is returned.
func NewPostgresStore(ctx context.Context, dsn string, migrateUp bool) (*SQLStore, error) {
	logger := slog.Default().With("component", "store", "driver", "postgres")

	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	if migrateUp {
		if err := Migrate(dsn, "up"); err != nil && !errors.Is(err, ErrNoChange) {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w: %w", ErrUnavailable, err)
	}

	logger.Info("Postgres store initialized")
	return &SQLStore{
		db:      db,
		dialect: DialectPostgres,
		logger:  logger,
	}, nil
}

// Migrate applies the embedded migrations in the given direction ("up" or "down").
// Returns ErrNoChange when there is nothing to do.
func Migrate(dsn, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	return err
}
