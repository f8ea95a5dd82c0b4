// ABOUTME: Per-key token bucket registry used to throttle worker polls per tenant
// ABOUTME: Idle limiters are evicted by a background sweep and an LRU size cap

package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a key's limiter survives without traffic
const DefaultIdleTTL = 10 * time.Minute

// DefaultMaxKeys caps the number of tracked keys
const DefaultMaxKeys = 10000

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	element  *list.Element
}

// Registry hands out one token bucket per key. The zero rate disables limiting:
// Allow always reports true and no state is kept.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys by last use, least recent at front
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	maxKeys int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Option adjusts a Registry
type Option func(*Registry)

// WithIdleTTL sets how long an unused limiter is kept
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

// WithMaxKeys caps the tracked keys; the least recently used key is dropped first
func WithMaxKeys(n int) Option {
	return func(r *Registry) { r.maxKeys = n }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry allowing perSecond events per key with the given burst.
// A background goroutine evicts idle keys until Close is called.
func New(perSecond float64, burst int, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		order:   list.New(),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: DefaultIdleTTL,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.burst < 1 {
		r.burst = 1
	}
	if r.Enabled() {
		go r.cleanup()
	}
	return r
}

// Enabled reports whether the registry limits anything
func (r *Registry) Enabled() bool {
	return r != nil && r.limit > 0
}

// Allow reports whether one event for key may happen now
func (r *Registry) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}

	r.mu.Lock()
	e := r.touchLocked(key)
	now := r.now()
	r.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// touchLocked returns the key's entry, creating it if needed. Must be called with mu held.
func (r *Registry) touchLocked(key string) *entry {
	now := r.now()

	if e, ok := r.entries[key]; ok {
		e.lastSeen = now
		r.order.MoveToBack(e.element)
		return e
	}

	if len(r.entries) >= r.maxKeys {
		r.evictOldest()
	}

	e := &entry{
		limiter:  rate.NewLimiter(r.limit, r.burst),
		lastSeen: now,
	}
	e.element = r.order.PushBack(key)
	r.entries[key] = e
	return e
}

// evictOldest drops the least recently used key. Must be called with mu held.
func (r *Registry) evictOldest() {
	front := r.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	r.order.Remove(front)
	delete(r.entries, key)
}

func (r *Registry) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}

// Sweep removes limiters idle for longer than the idle TTL and returns how many went
func (r *Registry) Sweep() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	// order is by last use, so stop at the first fresh key
	for front := r.order.Front(); front != nil; front = r.order.Front() {
		key, _ := front.Value.(string)
		e := r.entries[key]
		if e != nil && now.Sub(e.lastSeen) <= r.idleTTL {
			break
		}
		r.order.Remove(front)
		delete(r.entries, key)
		removed++
	}
	return removed
}

// Close stops the background sweep. It is safe to call multiple times.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		close(r.done)
		r.closed = true
	}
}
