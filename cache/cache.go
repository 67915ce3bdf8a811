package cache

import (
	"context"
	"log/slog"
	"time"
)

/* Cache-aside gateway over a key-value store with TTL expiry
 *
 * The gateway is a performance layer, never a correctness layer: every
 * store operation fails open, logging and falling through to the
 * uncached path, so an unavailable backend degrades latency only
 */

// Store abstracts the backing key-value store
type Store interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	/* Invalidate deletes every key matching the wildcard pattern and
	 * returns how many were removed. Idempotent: a pattern matching
	 * nothing is not an error
	 */
	Invalidate(ctx context.Context, pattern string) (int, error)
	Close(ctx context.Context) error
}

type Gateway struct {
	Store  Store
	TTL    time.Duration
	Logger *slog.Logger
}

// NewGateway creates a cache gateway with the configured entry TTL
func NewGateway(store Store, ttl time.Duration, logger *slog.Logger) *Gateway {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		Store:  store,
		TTL:    ttl,
		Logger: logger,
	}
}

// Lookup fetches a cached value; a backend error reads as a miss
func (g *Gateway) Lookup(ctx context.Context, key string) ([]byte, bool) {
	value, found, err := g.Store.Get(ctx, key)
	if err != nil {
		g.Logger.Error("cache backend unavailable, falling through", "key", key, "error", err)
		return nil, false
	}
	return value, found
}

// Save stores a value under the gateway TTL; errors are logged only
func (g *Gateway) Save(ctx context.Context, key string, value []byte) {
	if err := g.Store.Set(ctx, key, value, g.TTL); err != nil {
		g.Logger.Error("caching response failed", "key", key, "error", err)
	}
}

// Invalidate removes every entry matching the pattern
func (g *Gateway) Invalidate(ctx context.Context, pattern string) error {
	removed, err := g.Store.Invalidate(ctx, pattern)
	if err != nil {
		g.Logger.Error("cache invalidation failed", "pattern", pattern, "error", err)
		return err
	}
	g.Logger.Debug("cache invalidated", "pattern", pattern, "removed", removed)
	return nil
}
