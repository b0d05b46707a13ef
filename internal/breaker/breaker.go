// Package breaker suppresses calls to upstream providers that signalled rate
// limiting. Open state lives in the tiered cache under a key whose TTL is
// the cooldown, so it is shared across instances when L2 is reachable and
// expires on its own.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"quoteserve/internal/cache"
)

// Namespace is the cache namespace holding breaker state.
const Namespace = "breaker"

// State represents the breaker state for one provider.
type State int

const (
	StateClosed State = 0 // calls allowed
	StateOpen   State = 1 // calls suppressed until disabledUntil
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the provider is in cooldown.
var ErrOpen = errors.New("breaker: provider suppressed during cooldown")

// rateLimited is implemented by errors that should open the breaker.
type rateLimited interface {
	RateLimited() bool
}

// IsTripping reports whether err carries a rate-limit or fatal provider
// signal anywhere in its chain.
func IsTripping(err error) bool {
	var rl rateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

// Record is the persisted per-provider breaker state.
type Record struct {
	Provider      string    `json:"provider"`
	DisabledUntil time.Time `json:"disabled_until"`
}

// Config tunes a Breaker.
type Config struct {
	// Cooldown is the flat suppression window after a trip.
	Cooldown time.Duration
	// Threshold is the number of consecutive rate-limit errors that trips
	// the breaker.
	Threshold int
	// Classify decides whether an error counts toward the threshold.
	// Defaults to IsTripping.
	Classify func(error) bool
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Breaker is a two-state (closed/open) circuit breaker keyed by provider.
type Breaker struct {
	cache     *cache.Tiered
	cooldown  time.Duration
	threshold int
	classify  func(error) bool
	now       func() time.Time

	mu       sync.Mutex
	failures map[string]int
	open     map[string]bool

	// Callbacks (optional)
	OnStateChange func(provider string, from, to State)
}

// New creates a breaker storing its state in c.
func New(c *cache.Tiered, cfg Config) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	if cfg.Classify == nil {
		cfg.Classify = IsTripping
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{
		cache:     c,
		cooldown:  cfg.Cooldown,
		threshold: cfg.Threshold,
		classify:  cfg.Classify,
		now:       cfg.Clock,
		failures:  make(map[string]int),
		open:      make(map[string]bool),
	}
}

// Cooldown returns the configured suppression window.
func (b *Breaker) Cooldown() time.Duration { return b.cooldown }

// State returns the current state for provider.
func (b *Breaker) State(ctx context.Context, provider string) State {
	if _, ok := b.DisabledUntil(ctx, provider); ok {
		return StateOpen
	}
	return StateClosed
}

// Allow reports whether a call to provider may proceed now.
func (b *Breaker) Allow(ctx context.Context, provider string) bool {
	return b.State(ctx, provider) == StateClosed
}

// DisabledUntil returns the end of the cooldown if provider is open.
func (b *Breaker) DisabledUntil(ctx context.Context, provider string) (time.Time, bool) {
	rec, ok := cache.GetJSON[Record](ctx, b.cache, Namespace, provider)
	if ok && b.now().Before(rec.DisabledUntil) {
		b.markOpen(provider, true)
		return rec.DisabledUntil, true
	}
	b.markOpen(provider, false)
	return time.Time{}, false
}

// Trip opens the breaker for provider for one cooldown.
func (b *Breaker) Trip(ctx context.Context, provider string) {
	until := b.now().Add(b.cooldown)
	cache.SetJSON(ctx, b.cache, Namespace, provider, Record{Provider: provider, DisabledUntil: until}, b.cooldown)

	b.mu.Lock()
	b.failures[provider] = 0
	b.mu.Unlock()

	slog.Warn("provider suppressed", "component", "breaker",
		"provider", provider, "disabled_until", until, "cooldown", b.cooldown)
	b.markOpen(provider, true)
}

// Reset clears breaker state for provider.
func (b *Breaker) Reset(ctx context.Context, provider string) {
	b.cache.Delete(ctx, cache.Key(Namespace, provider))
	b.mu.Lock()
	b.failures[provider] = 0
	b.mu.Unlock()
	b.markOpen(provider, false)
}

// Record feeds the outcome of one provider call into the breaker.
// A success resets the consecutive count; transient errors leave it alone.
func (b *Breaker) Record(ctx context.Context, provider string, err error) {
	if err == nil {
		b.mu.Lock()
		b.failures[provider] = 0
		b.mu.Unlock()
		return
	}
	if !b.classify(err) {
		return
	}

	b.mu.Lock()
	b.failures[provider]++
	trip := b.failures[provider] >= b.threshold
	b.mu.Unlock()

	if trip {
		b.Trip(ctx, provider)
	}
}

// Execute runs fn unless provider is open, then records its outcome.
// Returns ErrOpen without calling fn during cooldown.
func (b *Breaker) Execute(ctx context.Context, provider string, fn func(context.Context) error) error {
	if !b.Allow(ctx, provider) {
		return ErrOpen
	}
	err := fn(ctx)
	b.Record(ctx, provider, err)
	return err
}

// markOpen tracks the last observed state to report transitions once.
func (b *Breaker) markOpen(provider string, open bool) {
	b.mu.Lock()
	was := b.open[provider]
	b.open[provider] = open
	b.mu.Unlock()

	if was == open || b.OnStateChange == nil {
		return
	}
	from, to := StateClosed, StateOpen
	if !open {
		from, to = StateOpen, StateClosed
	}
	b.OnStateChange(provider, from, to)
}
