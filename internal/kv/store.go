// Package kv is the shared TTL key/value cache used by sessions and auth tokens.
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/redis/go-redis/v9"
)

// Store is the key/value contract consumed by the session and token keyspaces.
type Store interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	// Take deletes key and reports whether this call removed it. Of several
	// concurrent callers at most one gets true.
	Take(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Scan performs one cursor step over keys matching the glob pattern.
	// A returned cursor of 0 means the iteration is complete.
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) (keys []string, next uint64, err error)
}

// RedisStore implements Store on a go-redis client. Every client error,
// timeouts included, is reported as apperr.ErrUnavailable.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < time.Second {
		// sub-second TTLs are rounded away by SETEX; keep at least one second
		ttl = time.Second
	}
	return apperr.Unavailable("redis set", s.client.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Unavailable("redis get", err)
	}
	return v, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return apperr.Unavailable("redis del", s.client.Del(ctx, key).Err())
}

func (s *RedisStore) Take(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, apperr.Unavailable("redis del", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, apperr.Unavailable("redis exists", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, pattern, count).Result()
	if err != nil {
		return nil, 0, apperr.Unavailable("redis scan", err)
	}
	return keys, next, nil
}
