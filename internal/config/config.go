//nolint:tagliatelle // superior snake-case yo.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the complete application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Query        QueryConfig        `yaml:"query"`
	Cache        CacheConfig        `yaml:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	// CORSOrigins lists browser origins allowed on /api/. Empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

// RedisConfig holds Redis client configuration.
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"` //nolint:gosec // Config field, not a hardcoded secret.
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
}

// QueryConfig describes the upstream query service and how result sets are
// paged out of it.
type QueryConfig struct {
	URL              string        `yaml:"url"`
	RowsRoute        string        `yaml:"rows_route"`
	CountRoute       string        `yaml:"count_route"`   // Defaults to rows_route
	RecordRoute      string        `yaml:"record_route"`  // Defaults to rows_route
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	BlockSize        int           `yaml:"block_size"`
	NeighborDepth    int           `yaml:"neighbor_depth"` // Depth used for record detail lookups
	IDField          string        `yaml:"id_field"`
	MaxSelectionRows int           `yaml:"max_selection_rows"` // 0 = unlimited

	// Bounds on what a single rows request may ask of the query service.
	MaxViewportBlocks int `yaml:"max_viewport_blocks"`
	MaxBlockSize      int `yaml:"max_block_size"`

	// Client views tracked for stale response detection.
	MaxViews int           `yaml:"max_views"`
	ViewTTL  time.Duration `yaml:"view_ttl"` // Idle time before a view is forgotten
}

// CacheConfig selects where fetched query results are kept.
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // "memory" or "redis"
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"` // 0 = no expiration
	KeyPrefix  string        `yaml:"key_prefix"`
}

// RateLimitingConfig holds rate limiting configuration.
type RateLimitingConfig struct {
	Enabled     bool            `yaml:"enabled"`
	FailureMode string          `yaml:"failure_mode"` // "fail_open" or "fail_closed"
	ExemptIPs   []string        `yaml:"exempt_ips"`   // CIDR ranges to whitelist
	Rules       []RateLimitRule `yaml:"rules"`
}

// RateLimitRule defines a single rate limit rule.
type RateLimitRule struct {
	Name        string        `yaml:"name"`
	PathPattern string        `yaml:"path_pattern"` // Regex pattern
	Limit       int           `yaml:"limit"`        // Max requests
	Window      time.Duration `yaml:"window"`       // Time window
}

// Validate validates the query configuration and sets defaults.
func (c *QueryConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}

	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if c.RowsRoute == "" {
		c.RowsRoute = "/query"
	}

	if c.CountRoute == "" {
		c.CountRoute = c.RowsRoute
	}

	if c.RecordRoute == "" {
		c.RecordRoute = c.RowsRoute
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}

	if c.BlockSize == 0 {
		c.BlockSize = 100
	}

	if c.IDField == "" {
		c.IDField = "id"
	}

	if c.MaxViewportBlocks == 0 {
		c.MaxViewportBlocks = 64
	}

	if c.MaxBlockSize == 0 {
		c.MaxBlockSize = max(1000, c.BlockSize)
	}

	if c.MaxViews == 0 {
		c.MaxViews = 10000
	}

	if c.ViewTTL == 0 {
		c.ViewTTL = 30 * time.Minute
	}

	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request_timeout must be at least 1 second, got %v", c.RequestTimeout)
	}

	if c.BlockSize < 1 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}

	if c.NeighborDepth < 0 {
		return fmt.Errorf("neighbor_depth cannot be negative, got %d", c.NeighborDepth)
	}

	if c.MaxSelectionRows < 0 {
		return fmt.Errorf("max_selection_rows cannot be negative, got %d", c.MaxSelectionRows)
	}

	if c.MaxViewportBlocks < 1 {
		return fmt.Errorf("max_viewport_blocks must be positive, got %d", c.MaxViewportBlocks)
	}

	if c.MaxBlockSize < c.BlockSize {
		return fmt.Errorf("max_block_size %d must be at least block_size %d", c.MaxBlockSize, c.BlockSize)
	}

	if c.MaxViews < 1 {
		return fmt.Errorf("max_views must be positive, got %d", c.MaxViews)
	}

	if c.ViewTTL < time.Second {
		return fmt.Errorf("view_ttl must be at least 1 second, got %v", c.ViewTTL)
	}

	return nil
}

// Validate validates the cache configuration and sets defaults.
func (c *CacheConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = CacheBackendMemory
	}

	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}

	if c.KeyPrefix == "" {
		c.KeyPrefix = "grid:query:"
	}

	if c.Backend != CacheBackendMemory && c.Backend != CacheBackendRedis {
		return fmt.Errorf("backend must be '%s' or '%s', got %q", CacheBackendMemory, CacheBackendRedis, c.Backend)
	}

	if c.MaxEntries < 1 {
		return fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries)
	}

	if c.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative, got %v", c.TTL)
	}

	return nil
}

// RedisRequired reports whether any enabled component needs Redis.
func (c *Config) RedisRequired() bool {
	return c.Cache.Backend == CacheBackendRedis || c.RateLimiting.Enabled
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// Redis is only needed by the redis cache backend and the rate limiter
	if c.RedisRequired() {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required")
		}

		if c.Redis.DialTimeout <= 0 {
			return fmt.Errorf("redis.dial_timeout must be positive")
		}

		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be positive")
		}

		if c.Redis.MinIdleConns < 0 || c.Redis.MinIdleConns > c.Redis.PoolSize {
			return fmt.Errorf("redis.min_idle_conns must be between 0 and pool_size")
		}

		if c.Redis.MaxRetries < -1 {
			return fmt.Errorf("redis.max_retries must be -1 (disabled) or more")
		}
	}

	// Validate rate limiting config
	if c.RateLimiting.Enabled {
		if err := c.validateRateLimiting(); err != nil {
			return fmt.Errorf("rate_limiting: %w", err)
		}
	}

	return nil
}

func (c *Config) validateRateLimiting() error {
	if c.RateLimiting.FailureMode != "fail_open" && c.RateLimiting.FailureMode != "fail_closed" {
		return fmt.Errorf("failure_mode must be 'fail_open' or 'fail_closed'")
	}

	if len(c.RateLimiting.Rules) == 0 {
		return fmt.Errorf("rules must have at least one rule")
	}

	for i, rule := range c.RateLimiting.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rules[%d].name is required", i)
		}

		if rule.PathPattern == "" {
			return fmt.Errorf("rules[%d].path_pattern is required", i)
		}

		if rule.Limit <= 0 {
			return fmt.Errorf("rules[%d].limit must be positive", i)
		}

		if rule.Window <= 0 {
			return fmt.Errorf("rules[%d].window must be positive", i)
		}

		if _, err := regexp.Compile(rule.PathPattern); err != nil {
			return fmt.Errorf("rules[%d].path_pattern invalid regex: %w", i, err)
		}
	}

	for i, cidr := range c.RateLimiting.ExemptIPs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			if net.ParseIP(cidr) == nil {
				return fmt.Errorf("exempt_ips[%d] invalid IP or CIDR: %s", i, cidr)
			}
		}
	}

	return nil
}
