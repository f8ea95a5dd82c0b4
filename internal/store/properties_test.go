package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ClaimIsAtMostOnce: for any number of pending commands and any
// number of concurrent claimers, every command is returned exactly once and
// each individual claim is in insertion order.
func TestProperty_ClaimIsAtMostOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("concurrent claims partition the pending set", prop.ForAll(
		func(pending, claimers int) bool {
			run++
			tenant := &Tenant{Name: fmt.Sprintf("prop-%d", run), APIKeyHash: fmt.Sprintf("prop-hash-%d", run)}
			if err := s.CreateTenant(ctx, tenant); err != nil {
				return false
			}

			want := make(map[string]bool, pending)
			for i := 0; i < pending; i++ {
				cmd := &Command{TenantID: tenant.ID, Name: "KICK", Args: map[string]any{"username": fmt.Sprint(i)}}
				if err := s.EnqueueCommand(ctx, cmd); err != nil {
					return false
				}
				want[cmd.ID] = true
			}

			results := make([][]*Command, claimers)
			errs := make([]error, claimers)
			var wg sync.WaitGroup
			for i := 0; i < claimers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = s.ClaimPending(ctx, tenant.ID, time.Now())
				}(i)
			}
			wg.Wait()

			seen := make(map[string]bool, pending)
			for i, claimed := range results {
				if errs[i] != nil {
					return false
				}
				for j, c := range claimed {
					if seen[c.ID] || !want[c.ID] {
						return false
					}
					if j > 0 && claimed[j-1].Seq >= c.Seq {
						return false
					}
					seen[c.ID] = true
				}
			}
			return len(seen) == pending
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

// TestProperty_PresenceTTLBoundary: a heartbeat at hb is live for any now with
// now-hb < ttl and absent once now-hb >= ttl, and the sweep agrees.
func TestProperty_PresenceTTLBoundary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "ttl")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := 0
	properties.Property("liveness flips exactly at the ttl boundary", prop.ForAll(
		func(ttlMs, offsetMs int64) bool {
			run++
			ttl := time.Duration(ttlMs) * time.Millisecond
			hb := base.Add(time.Duration(run) * time.Hour)
			instance := fmt.Sprintf("w-%d", run)
			if err := s.UpsertPresence(ctx, &Presence{InstanceID: instance, TenantID: tenant.ID, LastHeartbeat: hb}); err != nil {
				return false
			}

			now := hb.Add(time.Duration(offsetMs) * time.Millisecond)
			live, err := s.ListLivePresence(ctx, tenant.ID, now.Add(-ttl))
			if err != nil {
				return false
			}
			found := false
			for _, p := range live {
				if p.InstanceID == instance {
					found = true
				}
			}
			expectLive := now.Sub(hb) < ttl
			if found != expectLive {
				return false
			}

			evicted, err := s.SweepPresence(ctx, tenant.ID, now.Add(-ttl))
			if err != nil {
				return false
			}
			if expectLive {
				// clear this run's row before the next one
				_, _ = s.SweepPresence(ctx, tenant.ID, hb.Add(time.Hour))
				return true
			}
			return evicted >= 1
		},
		gen.Int64Range(1, 600000),
		gen.Int64Range(0, 900000),
	))

	properties.TestingRun(t)
}
