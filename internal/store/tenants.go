// ABOUTME: Tenant records: identity, hashed delivery credential, push config and flags
// ABOUTME: Lookup by API key hash is the only authentication path for workers

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const tenantColumns = `id, name, api_key_hash, push_routing_key, push_secret,
	flag_kicks, flag_bans, flag_announcements, flag_shutdowns, created_at, updated_at`

// CreateTenant inserts a tenant. ID and timestamps are generated when unset.
func (s *SQLStore) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.exec(ctx, query,
		t.ID,
		t.Name,
		t.APIKeyHash,
		nullString(t.PushRoutingKey),
		nullString(t.PushSecret),
		t.Flags.Kicks,
		t.Flags.Bans,
		t.Flags.Announcements,
		t.Flags.Shutdowns,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return unavailable("inserting tenant", err)
	}

	s.logger.Debug("created tenant", "id", t.ID, "name", t.Name)
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *SQLStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.queryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// GetTenantByAPIKeyHash retrieves the tenant owning a credential hash
func (s *SQLStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	row := s.queryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_key_hash = ?`, hash)
	return scanTenant(row)
}

// ListTenants returns all tenants ordered by name
func (s *SQLStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name, id`)
	if err != nil {
		return nil, unavailable("listing tenants", err)
	}
	defer rows.Close()

	tenants := []*Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating tenants", err)
	}
	return tenants, nil
}

// UpdateTenantAPIKey replaces the credential hash, invalidating the old key
func (s *SQLStore) UpdateTenantAPIKey(ctx context.Context, id, hash string) error {
	err := s.updateTenant(ctx, "rotating tenant api key",
		`UPDATE tenants SET api_key_hash = ?, updated_at = ? WHERE id = ?`,
		hash, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	s.logger.Debug("rotated tenant api key", "id", id)
	return nil
}

// UpdateTenantPush sets the push routing key and secret. Empty values clear them.
func (s *SQLStore) UpdateTenantPush(ctx context.Context, id, routingKey, secret string) error {
	err := s.updateTenant(ctx, "updating tenant push config",
		`UPDATE tenants SET push_routing_key = ?, push_secret = ?, updated_at = ? WHERE id = ?`,
		nullString(routingKey), nullString(secret), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	s.logger.Debug("updated tenant push config", "id", id, "configured", routingKey != "" && secret != "")
	return nil
}

// UpdateTenantFlags replaces the tenant's feature flags
func (s *SQLStore) UpdateTenantFlags(ctx context.Context, id string, flags FeatureFlags) error {
	err := s.updateTenant(ctx, "updating tenant flags",
		`UPDATE tenants SET flag_kicks = ?, flag_bans = ?, flag_announcements = ?, flag_shutdowns = ?, updated_at = ? WHERE id = ?`,
		flags.Kicks, flags.Bans, flags.Announcements, flags.Shutdowns, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	s.logger.Debug("updated tenant flags", "id", id, "flags", flags)
	return nil
}

func (s *SQLStore) updateTenant(ctx context.Context, op, query string, args ...any) error {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return unavailable(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var t Tenant
	var routingKey, secret sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.APIKeyHash,
		&routingKey,
		&secret,
		&t.Flags.Kicks,
		&t.Flags.Bans,
		&t.Flags.Announcements,
		&t.Flags.Shutdowns,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scanning tenant", err)
	}

	t.PushRoutingKey = routingKey.String
	t.PushSecret = secret.String
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	return &t, nil
}
