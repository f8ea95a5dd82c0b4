// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without a database and to inject storage failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
// Setting one of the *Err fields makes the matching operation fail with it.
type MockStore struct {
	mu         sync.RWMutex
	tenants    map[string]*Tenant   // keyed by tenant ID
	commands   []*Command           // in insertion order
	nextSeq    int64                // last assigned Seq
	presence   map[string]*Presence // keyed by presenceKey
	identities map[string]*IdentityMapping
	operators  map[string]*Operator
	roles      map[string]map[RoleName]bool
	audit      []AuditEntry

	EnqueueErr error
	ClaimErr   error
	UpsertErr  error
	SweepErr   error
	TenantErr  error
	PingErr    error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tenants:    make(map[string]*Tenant),
		presence:   make(map[string]*Presence),
		identities: make(map[string]*IdentityMapping),
		operators:  make(map[string]*Operator),
		roles:      make(map[string]map[RoleName]bool),
	}
}

// CreateTenant stores a new tenant.
func (m *MockStore) CreateTenant(ctx context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if _, ok := m.tenants[t.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.tenants {
		if existing.APIKeyHash == t.APIKeyHash {
			return ErrDuplicate
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	// Make a copy to avoid external modification
	c := *t
	m.tenants[c.ID] = &c
	return nil
}

// GetTenant retrieves a tenant by ID.
func (m *MockStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.TenantErr != nil {
		return nil, m.TenantErr
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}

// GetTenantByAPIKeyHash retrieves a tenant by credential hash.
func (m *MockStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.TenantErr != nil {
		return nil, m.TenantErr
	}
	for _, t := range m.tenants {
		if hash != "" && t.APIKeyHash == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// ListTenants returns all tenants ordered by name.
func (m *MockStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MockStore) updateTenant(id string, fn func(t *Tenant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateTenantAPIKey replaces the credential hash.
func (m *MockStore) UpdateTenantAPIKey(ctx context.Context, id, hash string) error {
	return m.updateTenant(id, func(t *Tenant) { t.APIKeyHash = hash })
}

// UpdateTenantPush sets push credentials.
func (m *MockStore) UpdateTenantPush(ctx context.Context, id, routingKey, secret string) error {
	return m.updateTenant(id, func(t *Tenant) {
		t.PushRoutingKey = routingKey
		t.PushSecret = secret
	})
}

// UpdateTenantFlags replaces feature flags.
func (m *MockStore) UpdateTenantFlags(ctx context.Context, id string, flags FeatureFlags) error {
	return m.updateTenant(id, func(t *Tenant) { t.Flags = flags })
}

// EnqueueCommand appends a pending command.
func (m *MockStore) EnqueueCommand(ctx context.Context, cmd *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	m.nextSeq++
	cmd.Seq = m.nextSeq
	cmd.Status = CommandPending
	cmd.ProcessedAt = nil

	c := *cmd
	c.Args = copyArgs(cmd.Args)
	m.commands = append(m.commands, &c)
	return nil
}

// ClaimPending marks and returns all pending commands for the tenant.
func (m *MockStore) ClaimPending(ctx context.Context, tenantID string, now time.Time) ([]*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	claimed := []*Command{}
	processedAt := now.UTC()
	for _, cmd := range m.commands {
		if cmd.TenantID != tenantID || cmd.Status != CommandPending {
			continue
		}
		cmd.Status = CommandProcessed
		pa := processedAt
		cmd.ProcessedAt = &pa
		c := *cmd
		c.Args = copyArgs(cmd.Args)
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

// ListCommands returns commands matching the filter, oldest first.
func (m *MockStore) ListCommands(ctx context.Context, f CommandFilter) ([]*Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(f.Limit)
	out := []*Command{}
	for _, cmd := range m.commands {
		if f.TenantID != "" && cmd.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && cmd.Status != f.Status {
			continue
		}
		c := *cmd
		c.Args = copyArgs(cmd.Args)
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpsertPresence records a heartbeat.
func (m *MockStore) UpsertPresence(ctx context.Context, p *Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if p.LastHeartbeat.IsZero() {
		p.LastHeartbeat = time.Now().UTC()
	}
	c := *p
	m.presence[presenceKey(c.TenantID, c.InstanceID)] = &c
	return nil
}

// SweepPresence deletes stale rows for the tenant.
func (m *MockStore) SweepPresence(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SweepErr != nil {
		return 0, m.SweepErr
	}
	var n int64
	for id, p := range m.presence {
		if p.TenantID == tenantID && !p.LastHeartbeat.After(cutoff) {
			delete(m.presence, id)
			n++
		}
	}
	return n, nil
}

// ListLivePresence returns rows newer than cutoff, most recent first.
func (m *MockStore) ListLivePresence(ctx context.Context, tenantID string, cutoff time.Time) ([]*Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Presence{}
	for _, p := range m.presence {
		if p.TenantID == tenantID && p.LastHeartbeat.After(cutoff) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastHeartbeat.Equal(out[j].LastHeartbeat) {
			return out[i].LastHeartbeat.After(out[j].LastHeartbeat)
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out, nil
}

func presenceKey(tenantID, instanceID string) string {
	return tenantID + "\x00" + instanceID
}

// PresenceCount returns the number of stored rows, live or not.
func (m *MockStore) PresenceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.presence)
}

func (m *MockStore) findIdentity(match func(*IdentityMapping) int) (*IdentityMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *IdentityMapping
	bestRank := 0
	for _, im := range m.identities {
		rank := match(im)
		if rank == 0 {
			continue
		}
		if best == nil || rank < bestRank || (rank == bestRank && im.LocalID < best.LocalID) {
			best, bestRank = im, rank
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c := *best
	return &c, nil
}

// GetIdentityByChatID resolves by chat ID (exact) or chat username (case-insensitive).
func (m *MockStore) GetIdentityByChatID(ctx context.Context, id string) (*IdentityMapping, error) {
	return m.findIdentity(func(im *IdentityMapping) int {
		switch {
		case im.ChatID != "" && im.ChatID == id:
			return 1
		case im.ChatUsername != "" && strings.EqualFold(im.ChatUsername, id):
			return 2
		}
		return 0
	})
}

// GetIdentityByGameID resolves by game ID (exact) or game username (case-insensitive).
func (m *MockStore) GetIdentityByGameID(ctx context.Context, id string) (*IdentityMapping, error) {
	return m.findIdentity(func(im *IdentityMapping) int {
		switch {
		case im.GameID != "" && im.GameID == id:
			return 1
		case im.GameUsername != "" && strings.EqualFold(im.GameUsername, id):
			return 2
		}
		return 0
	})
}

// GetIdentityByLocalID resolves by local ID.
func (m *MockStore) GetIdentityByLocalID(ctx context.Context, id string) (*IdentityMapping, error) {
	return m.findIdentity(func(im *IdentityMapping) int {
		if im.LocalID == id {
			return 1
		}
		return 0
	})
}

// UpsertIdentityMapping creates or replaces a mapping.
func (m *MockStore) UpsertIdentityMapping(ctx context.Context, im *IdentityMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.identities {
		if other.LocalID == im.LocalID {
			continue
		}
		if (im.ChatID != "" && other.ChatID == im.ChatID) || (im.GameID != "" && other.GameID == im.GameID) {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if existing, ok := m.identities[im.LocalID]; ok {
		im.CreatedAt = existing.CreatedAt
	} else if im.CreatedAt.IsZero() {
		im.CreatedAt = now
	}
	im.UpdatedAt = now
	c := *im
	m.identities[c.LocalID] = &c
	return nil
}

// CreateOperator stores a new operator.
func (m *MockStore) CreateOperator(ctx context.Context, op *Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if _, ok := m.operators[op.ID]; ok {
		return ErrDuplicate
	}
	if op.Status == "" {
		op.Status = OperatorActive
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	c := *op
	m.operators[c.ID] = &c
	return nil
}

// GetOperator retrieves an operator by ID.
func (m *MockStore) GetOperator(ctx context.Context, id string) (*Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *op
	return &c, nil
}

// ListOperators returns all operators, oldest first.
func (m *MockStore) ListOperators(ctx context.Context) ([]*Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Operator, 0, len(m.operators))
	for _, op := range m.operators {
		c := *op
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountOperators returns the number of operators.
func (m *MockStore) CountOperators(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.operators), nil
}

// AddRole grants a role; idempotent.
func (m *MockStore) AddRole(ctx context.Context, operatorID string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roles[operatorID] == nil {
		m.roles[operatorID] = make(map[RoleName]bool)
	}
	m.roles[operatorID][role] = true
	return nil
}

// RemoveRole revokes a role; idempotent.
func (m *MockStore) RemoveRole(ctx context.Context, operatorID string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.roles[operatorID], role)
	return nil
}

// HasRole reports whether the operator holds role.
func (m *MockStore) HasRole(ctx context.Context, operatorID string, role RoleName) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles[operatorID][role], nil
}

// ListRoles returns the operator's roles sorted by name.
func (m *MockStore) ListRoles(ctx context.Context, operatorID string) ([]RoleName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := []RoleName{}
	for r := range m.roles[operatorID] {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ActorOperatorID == "" {
		e.ActorOperatorID = SystemActor
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns entries newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(f.Limit)
	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.TargetType != "" && e.TargetType != f.TargetType {
			continue
		}
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping reports PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
