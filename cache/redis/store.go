package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// storeTimeout bounds cache store calls; the gateway falls through to
// the uncached path when it expires
const storeTimeout = 500 * time.Millisecond

/* Redis implementation of cache.Store
 * Entries expire by TTL; pattern invalidation is SCAN-then-DEL. The
 * scan-delete pair is not atomic, so a key written between the two may
 * survive one invalidation round - tolerated, since entries also expire
 * on their own
 */
type Store struct {
	client *redis.Client
}

// NewStore wraps an existing Redis client as a cache store
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get fetches a cached value; a missing key is not an error
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores a value with the given TTL
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes every key matching the wildcard pattern, one DEL
// per SCAN page. Idempotent: matching nothing removes nothing
func (s *Store) Invalidate(ctx context.Context, pattern string) (int, error) {
	removed := 0

	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scanning cache keys: %w", err)
		}

		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("deleting cache keys: %w", err)
			}
			removed += int(n)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Close closes the Redis connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}
