package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

/* Fixed-window request limiter keyed by (client, endpoint)
 *
 * Fixed window is a deliberate choice over sliding window or token
 * bucket: bounded memory and a single atomic increment per request, at
 * the cost of admitting up to 2x the limit across a window boundary.
 * That burst is accepted behavior, not a bug.
 *
 * The default Store is in-process, which limits per instance: under
 * horizontal scaling each instance enforces its own window. Deployments
 * that need one global window use the Redis store instead.
 */

// Config is the window configuration for one endpoint
type Config struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of a limit check, carrying everything the
// HTTP layer needs for the X-RateLimit-* headers
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

/* Store abstracts the window counter. Incr must be atomic for a given
 * key: create the window with count 1 if absent or expired, otherwise
 * increment, returning the new count and the window's reset time
 */
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	// Purge drops windows whose reset time has passed
	Purge(ctx context.Context, now time.Time) error
}

type Limiter struct {
	Store    Store
	Limits   *Limits
	Defaults Config
	Logger   *slog.Logger
}

// NewLimiter creates a limiter. limits may be nil, in which case every
// endpoint uses the default config
func NewLimiter(store Store, limits *Limits, defaults Config, logger *slog.Logger) *Limiter {
	if defaults.Window <= 0 {
		defaults.Window = time.Minute
	}
	if defaults.Max <= 0 {
		defaults.Max = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		Store:    store,
		Limits:   limits,
		Defaults: defaults,
		Logger:   logger,
	}
}

// ConfigFor returns the endpoint's configured limit, or the default
func (l *Limiter) ConfigFor(endpoint string) Config {
	if l.Limits != nil {
		if cfg, ok := l.Limits.Get(endpoint); ok {
			return cfg
		}
	}
	return l.Defaults
}

/* Check records one request against the (clientID, endpoint) window and
 * decides whether it is allowed. Fails open: if the store errors, the
 * request is allowed and the error only logged - availability of the
 * primary operation never depends on the limiter's own dependencies
 */
func (l *Limiter) Check(ctx context.Context, clientID, endpoint string) Decision {
	cfg := l.ConfigFor(endpoint)
	key := fmt.Sprintf("%s:%s", clientID, endpoint)

	count, resetAt, err := l.Store.Incr(ctx, key, cfg.Window)
	if err != nil {
		l.Logger.Error("rate limit store unavailable, failing open", "error", err)
		return Decision{
			Allowed:   true,
			Limit:     cfg.Max,
			Remaining: cfg.Max,
			ResetAt:   time.Now().Add(cfg.Window),
		}
	}

	remaining := cfg.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(cfg.Max) {
		return Decision{
			Allowed:    false,
			Limit:      cfg.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: time.Until(resetAt),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     cfg.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

/* RunPurge periodically drops expired windows so the counter table
 * cannot grow without bound. Decoupled from the request path; blocks
 * until the context is cancelled
 */
func (l *Limiter) RunPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Store.Purge(ctx, time.Now()); err != nil {
				l.Logger.Error("purging rate limit windows", "error", err)
			}
		}
	}
}
