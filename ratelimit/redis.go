package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// storeTimeout bounds every Redis call so a slow store cannot hold up
// the request path; the limiter fails open on expiry
const storeTimeout = 500 * time.Millisecond

const windowKeyPrefix = "ratelimit"

/* RedisStore keeps windows in Redis, giving one global window across
 * all API instances. INCR is atomic server-side, so there is no
 * read-modify-write race on the counter
 */
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client as a window store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr bumps the window counter, creating it with the window TTL on
// first request. The TTL doubles as the reset time
func (s *RedisStore) Incr(ctx context.Context, key string, windowSize time.Duration) (int64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	redisKey := fmt.Sprintf("%s:%s", windowKeyPrefix, key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incrementing window: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, windowSize).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("setting window expiry: %w", err)
		}
		return count, time.Now().Add(windowSize), nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reading window expiry: %w", err)
	}
	if ttl < 0 {
		// Counter without expiry (EXPIRE lost after INCR); restore it
		// rather than letting the window live forever
		s.client.PExpire(ctx, redisKey, windowSize)
		ttl = windowSize
	}
	return count, time.Now().Add(ttl), nil
}

// Purge is a no-op: Redis evicts windows by TTL
func (s *RedisStore) Purge(context.Context, time.Time) error {
	return nil
}
