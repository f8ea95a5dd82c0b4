// ABOUTME: Worker presence rows: heartbeat upsert, per-tenant TTL sweep, live listing
// ABOUTME: Liveness is last_heartbeat > now - ttl; callers pass the cutoff explicitly

package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertPresence records a heartbeat, creating the row on first sight.
// Rows are keyed by tenant, so tenants reusing an instance ID never collide.
func (s *SQLStore) UpsertPresence(ctx context.Context, p *Presence) error {
	if p.LastHeartbeat.IsZero() {
		p.LastHeartbeat = time.Now().UTC()
	}

	query := `
		INSERT INTO presence (instance_id, tenant_id, load_metric, last_heartbeat)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, instance_id) DO UPDATE SET
			load_metric = excluded.load_metric,
			last_heartbeat = excluded.last_heartbeat
	`

	_, err := s.exec(ctx, query,
		p.InstanceID,
		p.TenantID,
		p.Load,
		formatTime(p.LastHeartbeat),
	)
	if err != nil {
		return unavailable("upserting presence", err)
	}

	s.logger.Debug("heartbeat", "instance_id", p.InstanceID, "tenant_id", p.TenantID, "load", p.Load)
	return nil
}

// SweepPresence deletes the tenant's stale rows and reports how many went
func (s *SQLStore) SweepPresence(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx,
		`DELETE FROM presence WHERE tenant_id = ? AND last_heartbeat <= ?`,
		tenantID, formatTime(cutoff))
	if err != nil {
		return 0, unavailable("sweeping presence", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable("sweeping presence", err)
	}

	if n > 0 {
		s.logger.Debug("swept stale presence", "tenant_id", tenantID, "evicted", n)
	}
	return n, nil
}

// ListLivePresence returns the tenant's rows newer than cutoff, most recent first
func (s *SQLStore) ListLivePresence(ctx context.Context, tenantID string, cutoff time.Time) ([]*Presence, error) {
	query := `
		SELECT instance_id, tenant_id, load_metric, last_heartbeat
		FROM presence
		WHERE tenant_id = ? AND last_heartbeat > ?
		ORDER BY last_heartbeat DESC, instance_id
	`

	rows, err := s.query(ctx, query, tenantID, formatTime(cutoff))
	if err != nil {
		return nil, unavailable("listing presence", err)
	}
	defer rows.Close()

	live := []*Presence{}
	for rows.Next() {
		var p Presence
		var hb string
		if err := rows.Scan(&p.InstanceID, &p.TenantID, &p.Load, &hb); err != nil {
			return nil, unavailable("scanning presence", err)
		}
		if p.LastHeartbeat, err = parseTime(hb); err != nil {
			return nil, fmt.Errorf("presence %s: %w", p.InstanceID, err)
		}
		live = append(live, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating presence", err)
	}
	return live, nil
}
