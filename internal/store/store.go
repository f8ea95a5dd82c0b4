// ABOUTME: Store interfaces and data types for relay-gateway persistence
// ABOUTME: Defines Tenant, Command, Presence, IdentityMapping and the interfaces over them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a unique constraint
var ErrDuplicate = errors.New("already exists")

// ErrUnavailable wraps driver, connection and timeout failures from the database
var ErrUnavailable = errors.New("store unavailable")

// CommandStatus is the lifecycle state of a queued command.
// Transitions are monotonic: PENDING -> PROCESSED.
type CommandStatus string

const (
	CommandPending   CommandStatus = "PENDING"
	CommandProcessed CommandStatus = "PROCESSED"
)

// FeatureFlags gate which command categories a tenant's workers accept
type FeatureFlags struct {
	Kicks         bool
	Bans          bool
	Announcements bool
	Shutdowns     bool
}

// DefaultFeatureFlags enables everything except remote shutdowns
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{Kicks: true, Bans: true, Announcements: true}
}

// Map returns the flags keyed by their wire names
func (f FeatureFlags) Map() map[string]bool {
	return map[string]bool{
		"kicks":         f.Kicks,
		"bans":          f.Bans,
		"announcements": f.Announcements,
		"shutdowns":     f.Shutdowns,
	}
}

// Tenant is an isolated customer unit with its own credential and push config
type Tenant struct {
	ID             string
	Name           string
	APIKeyHash     string // hex SHA-256 of the delivery credential
	PushRoutingKey string // empty when push is not configured
	PushSecret     string // possibly sealed, see push.Sealer
	Flags          FeatureFlags
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PushConfigured reports whether the tenant has both push credentials
func (t *Tenant) PushConfigured() bool {
	return t.PushRoutingKey != "" && t.PushSecret != ""
}

// Command is a queued instruction for one of a tenant's workers
type Command struct {
	ID          string
	Seq         int64 // insertion order within the queue
	TenantID    string
	Name        string // uppercase
	Args        map[string]any
	Status      CommandStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Presence is the heartbeat record of one worker instance
type Presence struct {
	InstanceID    string
	TenantID      string
	Load          int64
	LastHeartbeat time.Time
}

// IdentityMapping links a local account with a chat account and a game account
type IdentityMapping struct {
	LocalID      string
	ChatID       string
	ChatUsername string
	GameID       string
	GameUsername string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CommandFilter narrows ListCommands
type CommandFilter struct {
	TenantID string
	Status   CommandStatus // empty means any
	Limit    int           // default 100, max 1000
}

// TenantStore manages tenant records and their delivery credentials
type TenantStore interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	UpdateTenantAPIKey(ctx context.Context, id, hash string) error
	UpdateTenantPush(ctx context.Context, id, routingKey, secret string) error
	UpdateTenantFlags(ctx context.Context, id string, flags FeatureFlags) error
}

// CommandStore is the durable per-tenant command queue
type CommandStore interface {
	// EnqueueCommand appends a PENDING command. It is durable once this returns nil.
	EnqueueCommand(ctx context.Context, cmd *Command) error
	// ClaimPending transitions every PENDING command of the tenant to PROCESSED in
	// a single conditional update and returns them oldest first.
	ClaimPending(ctx context.Context, tenantID string, now time.Time) ([]*Command, error)
	ListCommands(ctx context.Context, f CommandFilter) ([]*Command, error)
}

// PresenceStore tracks live worker instances
type PresenceStore interface {
	UpsertPresence(ctx context.Context, p *Presence) error
	// SweepPresence deletes the tenant's records with last_heartbeat <= cutoff.
	SweepPresence(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
	// ListLivePresence returns the tenant's records with last_heartbeat > cutoff.
	ListLivePresence(ctx context.Context, tenantID string, cutoff time.Time) ([]*Presence, error)
}

// IdentityStore resolves account mappings. Writes come from provisioning only.
type IdentityStore interface {
	GetIdentityByChatID(ctx context.Context, id string) (*IdentityMapping, error)
	GetIdentityByGameID(ctx context.Context, id string) (*IdentityMapping, error)
	GetIdentityByLocalID(ctx context.Context, id string) (*IdentityMapping, error)
	UpsertIdentityMapping(ctx context.Context, m *IdentityMapping) error
}

// OperatorStore manages control-plane operators and their roles
type OperatorStore interface {
	CreateOperator(ctx context.Context, op *Operator) error
	GetOperator(ctx context.Context, id string) (*Operator, error)
	ListOperators(ctx context.Context) ([]*Operator, error)
	CountOperators(ctx context.Context) (int, error)
	AddRole(ctx context.Context, operatorID string, role RoleName) error
	RemoveRole(ctx context.Context, operatorID string, role RoleName) error
	HasRole(ctx context.Context, operatorID string, role RoleName) (bool, error)
	ListRoles(ctx context.Context, operatorID string) ([]RoleName, error)
}

// AuditStore records administrative actions
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is the full persistence surface used by the gateway
type Store interface {
	TenantStore
	CommandStore
	PresenceStore
	IdentityStore
	OperatorStore
	AuditStore

	Ping(ctx context.Context) error
	Close() error
}
