// Package cache implements the two-tier quote cache: a process-local TTL map
// (L1) in front of a shared network cache (L2). Absence is a miss, never an
// error; L2 failures degrade to L1-only service.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// L2 is the shared, network-backed tier.
type L2 interface {
	// Get returns the value and its remaining TTL. found is false on a miss.
	Get(ctx context.Context, key string) (val []byte, ttl time.Duration, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Tier labels passed to hooks.
const (
	TierL1 = "l1"
	TierL2 = "l2"
)

// Config tunes the tiered cache.
type Config struct {
	// BackfillTTL caps how long an L2 hit is kept in L1.
	BackfillTTL time.Duration
	// ProbeCooldown is the wait between L2 reconnection attempts.
	ProbeCooldown time.Duration
	// ProbeTimeout bounds the connectivity probe.
	ProbeTimeout time.Duration
	// OpTimeout bounds every L2 read/write.
	OpTimeout time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BackfillTTL:   30 * time.Second,
		ProbeCooldown: 10 * time.Second,
		ProbeTimeout:  300 * time.Millisecond,
		OpTimeout:     500 * time.Millisecond,
	}
}

// entry is one L1 value with its absolute expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// Tiered is the L1+L2 cache. Safe for concurrent use; writes are
// last-write-wins per key.
type Tiered struct {
	cfg Config
	l2  L2

	mu    sync.RWMutex
	items map[string]entry

	probeMu   sync.Mutex
	l2Up      bool
	probing   bool
	lastProbe time.Time

	now func() time.Time

	// Hooks (optional)
	OnHit     func(tier string)
	OnMiss    func()
	OnL2Error func(op string)
}

// New creates a tiered cache. l2 may be nil for an L1-only cache.
func New(l2 L2, cfg Config) *Tiered {
	def := DefaultConfig()
	if cfg.BackfillTTL <= 0 {
		cfg.BackfillTTL = def.BackfillTTL
	}
	if cfg.ProbeCooldown <= 0 {
		cfg.ProbeCooldown = def.ProbeCooldown
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Tiered{
		cfg:   cfg,
		l2:    l2,
		items: make(map[string]entry, 256),
		now:   now,
	}
}

// Key joins a namespace and a key into the stored key "namespace:key".
func Key(namespace, key string) string {
	return namespace + ":" + key
}

// Get returns the value for (namespace, key). ok is false on a miss at
// both tiers, which tells the caller to recompute.
func (c *Tiered) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	full := Key(namespace, key)
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[full]
	c.mu.RUnlock()
	if ok {
		if now.Before(e.expiresAt) {
			c.hit(TierL1)
			return e.value, true
		}
		c.evictIfExpired(full, now)
	}

	if !c.l2Ready(ctx) {
		c.miss()
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	val, ttl, found, err := c.l2.Get(opCtx, full)
	cancel()
	if err != nil {
		c.l2Failed(ctx, "get", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}

	// Backfill L1 briefly to absorb bursts; never outlive the L2 entry.
	backfill := c.cfg.BackfillTTL
	if ttl > 0 && ttl < backfill {
		backfill = ttl
	}
	c.mu.Lock()
	c.items[full] = entry{value: val, expiresAt: now.Add(backfill)}
	c.mu.Unlock()

	c.hit(TierL2)
	return val, true
}

// Has reports whether (namespace, key) is present at either tier.
func (c *Tiered) Has(ctx context.Context, namespace, key string) bool {
	_, ok := c.Get(ctx, namespace, key)
	return ok
}

// Set writes L1 with ttl and, best effort, L2 with the same ttl.
// L2 failures are logged and swallowed.
func (c *Tiered) Set(ctx context.Context, namespace, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	full := Key(namespace, key)

	c.mu.Lock()
	c.items[full] = entry{value: val, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	if !c.l2Ready(ctx) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Set(opCtx, full, val, ttl); err != nil {
		c.l2Failed(ctx, "set", err)
	}
}

// Delete removes full keys (see Key) from both tiers.
func (c *Tiered) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.DeleteLocal(keys...)

	if !c.l2Ready(ctx) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Del(opCtx, keys...); err != nil {
		c.l2Failed(ctx, "del", err)
	}
}

// DeleteLocal removes full keys from L1 only.
func (c *Tiered) DeleteLocal(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
}

// L2Available reports the last known L2 state without probing.
func (c *Tiered) L2Available() bool {
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	return c.l2 != nil && c.l2Up
}

// Len returns the number of L1 entries, expired ones included.
func (c *Tiered) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Sweep drops expired L1 entries and returns how many were removed.
func (c *Tiered) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (c *Tiered) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// l2Ready returns true if L2 may be used now. While L2 is down it probes at
// most once per ProbeCooldown; concurrent callers never wait on a probe.
func (c *Tiered) l2Ready(ctx context.Context) bool {
	if c.l2 == nil {
		return false
	}

	c.probeMu.Lock()
	if c.l2Up {
		c.probeMu.Unlock()
		return true
	}
	now := c.now()
	if c.probing || (!c.lastProbe.IsZero() && now.Sub(c.lastProbe) < c.cfg.ProbeCooldown) {
		c.probeMu.Unlock()
		return false
	}
	c.probing = true
	c.lastProbe = now
	c.probeMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	err := c.l2.Ping(probeCtx)
	cancel()

	c.probeMu.Lock()
	c.probing = false
	c.l2Up = err == nil
	c.probeMu.Unlock()

	if err != nil {
		slog.Warn("l2 cache unavailable, serving from l1 only",
			"component", "cache", "retry_in", c.cfg.ProbeCooldown, "error", err)
		if c.OnL2Error != nil {
			c.OnL2Error("probe")
		}
		return false
	}
	slog.Info("l2 cache connected", "component", "cache")
	return true
}

// l2Failed marks L2 down so the next access waits out the cooldown. Errors
// caused by the caller's own cancellation say nothing about L2.
func (c *Tiered) l2Failed(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	c.probeMu.Lock()
	c.l2Up = false
	c.lastProbe = c.now()
	c.probeMu.Unlock()

	slog.Warn("l2 cache operation failed", "component", "cache", "op", op, "error", err)
	if c.OnL2Error != nil {
		c.OnL2Error(op)
	}
}

func (c *Tiered) evictIfExpired(full string, now time.Time) {
	c.mu.Lock()
	if e, ok := c.items[full]; ok && !now.Before(e.expiresAt) {
		delete(c.items, full)
	}
	c.mu.Unlock()
}

func (c *Tiered) hit(tier string) {
	if c.OnHit != nil {
		c.OnHit(tier)
	}
}

func (c *Tiered) miss() {
	if c.OnMiss != nil {
		c.OnMiss()
	}
}

// GetJSON decodes a cached JSON value into T. A decode failure is a miss.
func GetJSON[T any](ctx context.Context, c *Tiered, namespace, key string) (T, bool) {
	var v T
	b, ok := c.Get(ctx, namespace, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		slog.Warn("dropping undecodable cache entry", "component", "cache",
			"key", Key(namespace, key), "error", err)
		c.Delete(ctx, Key(namespace, key))
		return v, false
	}
	return v, true
}

// SetJSON encodes v as JSON and stores it.
func SetJSON[T any](ctx context.Context, c *Tiered, namespace, key string, v T, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache value not encodable", "component", "cache",
			"key", Key(namespace, key), "error", err)
		return
	}
	c.Set(ctx, namespace, key, b, ttl)
}
