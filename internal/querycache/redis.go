package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/redis"
)

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)

// DefaultKeyPrefix namespaces query cache entries in Redis.
const DefaultKeyPrefix = "grid:query:"

// RedisStore keeps query responses in Redis so several service instances
// share one warm cache.
type RedisStore struct {
	log    logrus.FieldLogger
	redis  redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl stores values
// without expiration.
func NewRedisStore(
	log logrus.FieldLogger,
	redisClient redis.Client,
	prefix string,
	ttl time.Duration,
) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisStore{
		log:    log.WithField("component", "querycache_redis"),
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get reads a value from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.redis.Get(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	return []byte(data), true, nil
}

// Set writes a value to Redis with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, s.prefix+key, string(value), s.ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Purge deletes every key under the store prefix.
func (s *RedisStore) Purge(ctx context.Context) error {
	deleted, err := s.redis.DeleteByPrefix(ctx, s.prefix)
	if err != nil {
		return fmt.Errorf("purge cache keys: %w", err)
	}

	s.log.WithField("deleted", deleted).Info("Purged query cache")

	return nil
}
