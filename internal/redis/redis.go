package redis

//go:generate mockgen -package mocks -destination mocks/mock_client.go github.com/ethpandaops/resultgrid/internal/redis Client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Compile-time interface compliance check.
var _ Client = (*client)(nil)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Client provides the Redis operations used by the query cache.
type Client interface {
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	GetClient() *redis.Client
}

type client struct {
	log    logrus.FieldLogger
	cfg    Config
	client *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(log logrus.FieldLogger, cfg Config) Client {
	return &client{
		log: log.WithField("component", "redis"),
		cfg: cfg,
	}
}

// Start initializes the Redis connection pool and verifies connectivity.
func (c *client) Start(ctx context.Context) error {
	c.log.WithFields(logrus.Fields{
		"address": c.cfg.Address,
		"db":      c.cfg.DB,
	}).Info("Initializing Redis client")

	c.client = redis.NewClient(c.cfg.options())

	// Verify connection
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.log.Info("Redis client started successfully")

	return nil
}

// Stop closes the Redis connection pool.
func (c *client) Stop() error {
	c.log.Info("Stopping Redis client")

	if c.client != nil {
		return c.client.Close()
	}

	return nil
}

// Ping verifies Redis connectivity.
func (c *client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a value by key.
func (c *client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return val, err
}

// Set stores a key-value pair with optional TTL (0 = no expiration).
func (c *client) Set(
	ctx context.Context,
	key,
	value string,
	ttl time.Duration,
) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// scanBatch is the COUNT hint for SCAN; one DEL is issued per batch.
const scanBatch = 500

// DeleteByPrefix removes every key starting with prefix and reports how many
// were deleted. It walks the keyspace with SCAN, so keys written while it
// runs may survive.
func (c *client) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
		match   = escapeGlob(prefix) + "*"
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %q: %w", prefix, err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete %d keys: %w", len(keys), err)
			}

			deleted += int(n)
		}

		if next == 0 {
			return deleted, nil
		}

		cursor = next
	}
}

const globSpecial = `\*?[]`

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax so
// prefix matches literally.
func escapeGlob(prefix string) string {
	var b strings.Builder

	for _, r := range prefix {
		if strings.ContainsRune(globSpecial, r) {
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// GetClient returns the underlying go-redis client. The rate limiter needs
// it for pipelined transactions.
func (c *client) GetClient() *redis.Client {
	return c.client
}
