package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis client configuration. Zero values fall through to the
// go-redis defaults.
type Config struct {
	Address      string
	Password     string //nolint:gosec // Config field, not a hardcoded secret.
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// MinIdleConns keeps warm connections for the query cache's burst of
	// block lookups when a viewport opens.
	MinIdleConns int
	// MaxRetries of -1 disables retries.
	MaxRetries int
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
	}
}
