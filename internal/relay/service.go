// ABOUTME: Relay service: durable enqueue with best-effort push, and worker polls
// ABOUTME: Poll records a heartbeat, sweeps stale presence, then claims pending commands

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/command"
	"github.com/2389/relay-gateway/internal/metrics"
	"github.com/2389/relay-gateway/internal/push"
	"github.com/2389/relay-gateway/internal/ratelimit"
	"github.com/2389/relay-gateway/internal/store"
)

// DefaultPresenceTTL is how long a worker stays live after its last heartbeat
const DefaultPresenceTTL = 5 * time.Minute

// DefaultStoreTimeout bounds every store call made on behalf of a request
const DefaultStoreTimeout = 3 * time.Second

// pushGrace is added to the dispatcher's own timeout when waiting for its result
const pushGrace = 250 * time.Millisecond

// Dispatcher sends the best-effort push notification for a queued command
type Dispatcher interface {
	Dispatch(ctx context.Context, tenant *store.Tenant, name string, args map[string]any) push.Result
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	PresenceTTL  time.Duration
	StoreTimeout time.Duration

	// PushWait caps how long Enqueue waits to report the push outcome in its
	// response. It bounds latency only: the command is already durable and
	// the push keeps running after the wait expires.
	PushWait time.Duration

	Limiter *ratelimit.Registry
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service implements the command relay operations on top of a Store
type Service struct {
	store        store.Store
	dispatcher   Dispatcher
	ttl          time.Duration
	storeTimeout time.Duration
	pushWait     time.Duration
	limiter      *ratelimit.Registry
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a relay service. dispatcher may be nil, in which case
// every enqueue reports a failed push.
func NewService(s store.Store, dispatcher Dispatcher, opts Options) *Service {
	svc := &Service{
		store:        s,
		dispatcher:   dispatcher,
		ttl:          opts.PresenceTTL,
		storeTimeout: opts.StoreTimeout,
		pushWait:     opts.PushWait,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultPresenceTTL
	}
	if svc.storeTimeout <= 0 {
		svc.storeTimeout = DefaultStoreTimeout
	}
	if svc.pushWait <= 0 {
		svc.pushWait = 3*time.Second + pushGrace
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	svc.logger = svc.logger.With("component", "relay")
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// PresenceTTL returns the configured liveness window
func (s *Service) PresenceTTL() time.Duration { return s.ttl }

// Authenticate resolves a delivery credential to its tenant
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*store.Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, newError(KindAuthenticationMissing, "api key is required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	tenant, err := s.store.GetTenantByAPIKeyHash(ctx, auth.HashAPIKey(apiKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindAuthenticationInvalid, "invalid api key", nil)
	}
	if err != nil {
		s.logger.Error("tenant lookup failed", "error", err)
		return nil, newError(KindStorageUnavailable, "storage unavailable", err)
	}
	return tenant, nil
}

// EnqueueRequest is one control-plane command submission
type EnqueueRequest struct {
	APIKey    string
	Command   string
	Args      map[string]any
	Moderator string
	// OperatorName attributes the command when no moderator is given
	OperatorName string
}

// EnqueueResult describes a durably queued command and the push outcome
type EnqueueResult struct {
	Command    *store.Command
	PushStatus push.Status
	PushError  string
}

// Message is a short human-readable confirmation
func (r *EnqueueResult) Message() string {
	return fmt.Sprintf("Command %s queued", r.Command.Name)
}

// Enqueue authenticates, validates and durably queues a command. Once the
// row is written the push notification runs on its own context and only
// ever affects PushStatus. A failed write sends no push.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	tenant, err := s.Authenticate(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	cmd, err := command.Parse(req.Command, req.Args, s.moderatorFor(req))
	if err != nil {
		return nil, newError(KindValidationFailed, err.Error(), err)
	}
	name := string(cmd.Kind())
	args := cmd.Args()

	row := &store.Command{
		TenantID:  tenant.ID,
		Name:      name,
		Args:      args,
		CreatedAt: s.now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err = s.store.EnqueueCommand(writeCtx, row)
	cancel()
	if err != nil {
		s.logger.Error("enqueue failed", "tenant_id", tenant.ID, "command", name, "error", err)
		return nil, newError(KindStorageUnavailable, "failed to queue command", err)
	}
	s.metrics.CommandEnqueued(name)

	pushed := s.startPush(ctx, tenant, name, args)
	res := s.awaitPush(ctx, pushed)
	result := &EnqueueResult{Command: row, PushStatus: res.Status()}
	if res.Err != nil {
		result.PushError = pushErrorMessage(res.Err)
	}
	s.metrics.PushResult(pushMetricLabel(res))

	s.logger.Info("command queued",
		"tenant_id", tenant.ID,
		"command_id", row.ID,
		"command", name,
		"moderator", cmd.Moderator(),
		"push_status", result.PushStatus,
	)
	return result, nil
}

// moderatorFor picks the attribution: explicit field, then the args bag,
// then the authenticated operator. Parse supplies the final fallback.
func (s *Service) moderatorFor(req EnqueueRequest) string {
	if m := strings.TrimSpace(req.Moderator); m != "" {
		return m
	}
	if m, ok := req.Args["moderator"].(string); ok && strings.TrimSpace(m) != "" {
		return m
	}
	return req.OperatorName
}

func (s *Service) startPush(ctx context.Context, tenant *store.Tenant, name string, args map[string]any) <-chan push.Result {
	ch := make(chan push.Result, 1)
	if s.dispatcher == nil {
		ch <- push.Result{Err: push.ErrNotConfigured}
		return ch
	}
	// The push outlives a cancelled request; the dispatcher applies its own timeout.
	pushCtx := context.WithoutCancel(ctx)
	go func() {
		ch <- s.dispatcher.Dispatch(pushCtx, tenant, name, args)
	}()
	return ch
}

func (s *Service) awaitPush(ctx context.Context, ch <-chan push.Result) push.Result {
	timer := time.NewTimer(s.pushWait)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res
	case <-timer.C:
		return push.Result{Err: &push.DeliveryError{Err: context.DeadlineExceeded}}
	case <-ctx.Done():
		return push.Result{Err: &push.DeliveryError{Err: ctx.Err()}}
	}
}

func pushErrorMessage(err error) string {
	var derr *push.DeliveryError
	switch {
	case errors.Is(err, push.ErrNotConfigured):
		return string(KindNotConfigured)
	case errors.As(err, &derr):
		return string(KindUpstreamDeliveryFailed) + ": " + derr.Error()
	default:
		return string(KindUpstreamDeliveryFailed) + ": " + err.Error()
	}
}

func pushMetricLabel(res push.Result) string {
	if errors.Is(res.Err, push.ErrNotConfigured) {
		return "NotConfigured"
	}
	return string(res.Status())
}

// PollRequest is one worker poll. InstanceID is optional; without it the
// poll claims commands but records no presence.
type PollRequest struct {
	APIKey     string
	InstanceID string
	Load       *int64
}

// PollResult carries the commands claimed by this poll, in queue order
type PollResult struct {
	TenantID string
	Commands []*store.Command
	Evicted  int64
}

// Poll authenticates the worker, records its heartbeat, evicts the tenant's
// stale presence rows and claims every pending command for the tenant.
func (s *Service) Poll(ctx context.Context, req PollRequest) (*PollResult, error) {
	tenant, err := s.Authenticate(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}
	if !s.limiter.Allow(tenant.ID) {
		return nil, newError(KindRateLimited, "poll rate exceeded", nil)
	}

	now := s.now().UTC()
	result := &PollResult{TenantID: tenant.ID}
	instanceID := strings.TrimSpace(req.InstanceID)

	if instanceID != "" {
		result.Evicted = s.heartbeat(ctx, tenant.ID, instanceID, req.Load, now)
	}
	s.metrics.Poll(instanceID != "")

	claimCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	commands, err := s.store.ClaimPending(claimCtx, tenant.ID, now)
	if err != nil {
		s.logger.Error("claim failed", "tenant_id", tenant.ID, "error", err)
		return nil, newError(KindStorageUnavailable, "failed to claim commands", err)
	}
	result.Commands = commands
	s.metrics.Claimed(len(commands))

	if len(commands) > 0 {
		s.logger.Info("commands claimed", "tenant_id", tenant.ID, "instance_id", instanceID, "count", len(commands))
	}
	return result, nil
}

// heartbeat upserts presence and sweeps stale rows. Failures here never fail the poll.
func (s *Service) heartbeat(ctx context.Context, tenantID, instanceID string, load *int64, now time.Time) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p := &store.Presence{InstanceID: instanceID, TenantID: tenantID, LastHeartbeat: now}
	if load != nil {
		p.Load = *load
	}
	if err := s.store.UpsertPresence(ctx, p); err != nil {
		s.logger.Warn("presence upsert failed", "tenant_id", tenantID, "instance_id", instanceID, "error", err)
	}

	evicted, err := s.store.SweepPresence(ctx, tenantID, now.Add(-s.ttl))
	if err != nil {
		s.logger.Warn("presence sweep failed", "tenant_id", tenantID, "error", err)
		return 0
	}
	if evicted > 0 {
		s.metrics.Evicted(evicted)
		s.logger.Debug("evicted stale presence", "tenant_id", tenantID, "count", evicted)
	}
	return evicted
}

// Settings returns the feature flags for the credential's tenant
func (s *Service) Settings(ctx context.Context, apiKey string) (store.FeatureFlags, error) {
	tenant, err := s.Authenticate(ctx, apiKey)
	if err != nil {
		return store.FeatureFlags{}, err
	}
	return tenant.Flags, nil
}

// LivePresence lists the tenant's workers that satisfy the liveness
// predicate. It never deletes rows; only Poll sweeps.
func (s *Service) LivePresence(ctx context.Context, tenantID string) ([]*store.Presence, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, "tenant not found", err)
		}
		return nil, newError(KindStorageUnavailable, "storage unavailable", err)
	}

	live, err := s.store.ListLivePresence(ctx, tenantID, s.now().UTC().Add(-s.ttl))
	if err != nil {
		return nil, newError(KindStorageUnavailable, "failed to list presence", err)
	}
	return live, nil
}
