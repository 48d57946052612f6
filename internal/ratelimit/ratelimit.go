package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Compile-time interface compliance check.
var _ Limiter = (*limiter)(nil)

// DefaultKeyPrefix namespaces rate limit counters in Redis.
const DefaultKeyPrefix = "grid:ratelimit:"

// Rule is a named request budget per client.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per client and rule in fixed windows.
type Limiter interface {
	// Allow records one request. On a backend failure the returned decision
	// follows the configured failure mode and err is non-nil.
	Allow(ctx context.Context, clientIP string, rule Rule) (Decision, error)
}

type limiter struct {
	log      logrus.FieldLogger
	redis    *redis.Client
	prefix   string
	failOpen bool
	now      func() time.Time
}

// NewLimiter creates a Redis backed limiter. failureMode is "fail_open" or
// "fail_closed".
func NewLimiter(log logrus.FieldLogger, redisClient *redis.Client, failureMode string) Limiter {
	return &limiter{
		log:      log.WithField("component", "ratelimit"),
		redis:    redisClient,
		prefix:   DefaultKeyPrefix,
		failOpen: failureMode != "fail_closed",
		now:      time.Now,
	}
}

func (l *limiter) key(clientIP, rule string) string {
	return l.prefix + rule + ":" + clientIP
}

// Allow implements Limiter. The counter and its remaining lifetime are read
// in one transaction; the window starts with the first request.
func (l *limiter) Allow(ctx context.Context, clientIP string, rule Rule) (Decision, error) {
	key := l.key(clientIP, rule.Name)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		rateLimitErrorsTotal.WithLabelValues(rule.Name).Inc()

		decision := Decision{Allowed: l.failOpen, Limit: rule.Limit}
		if l.failOpen {
			decision.Remaining = rule.Limit
		}

		return decision, fmt.Errorf("rate limiter unavailable: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := l.redis.PExpire(ctx, key, rule.Window).Err(); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("Failed to set rate limit window")
		}

		ttl = rule.Window
	}

	var (
		count    = incr.Val()
		decision = Decision{
			Allowed:   count <= int64(rule.Limit),
			Limit:     rule.Limit,
			Remaining: max(rule.Limit-int(count), 0),
			ResetAt:   l.now().Add(ttl),
		}
	)

	if decision.Allowed {
		rateLimitAllowedTotal.WithLabelValues(rule.Name).Inc()
	} else {
		rateLimitDeniedTotal.WithLabelValues(rule.Name).Inc()
	}

	return decision, nil
}
