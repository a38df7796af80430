// redis.go -- go-redis client for session caching.
//
// Stores session data with TTL matching session expiry.
// Fast path for /validate (~0.1ms vs ~1-5ms for Postgres).
// If Redis is unavailable, callers fall back to Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for session cache operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and returns a ready-to-use cache store.
// It pings Redis to verify connectivity before returning. Call once at startup
// from main.go; the returned store is safe for concurrent use.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisStore{rdb}, nil
}

// Close shuts down the Redis client and releases all resources.
// Call via defer in main.go after creating the store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// sessionKey namespaces cache entries by token hash.
func sessionKey(tokenHash string) string {
	return "session:" + tokenHash
}

// SetSession caches a session with the given TTL. A non-positive TTL is a
// no-op: Redis SET with TTL 0 would mean "no expiry", not "already expired".
func (s *RedisStore) SetSession(ctx context.Context, tokenHash string, sess CachedSession, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	out, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(tokenHash), out, ttl).Err(); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}
	return nil
}

// GetSession retrieves a cached session by its token hash.
// Returns ErrCacheMiss when the key is absent; any other error is a Redis failure.
func (s *RedisStore) GetSession(ctx context.Context, tokenHash string) (*CachedSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var cached CachedSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &cached, nil
}
