package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Compile-time interface compliance check.
var _ Cache = (*QueryCache)(nil)

// Fetcher loads the value for a key on a cache miss.
type Fetcher func(ctx context.Context) ([]byte, error)

// Cache is the process-wide query cache shared by the row loader and the
// record detail lookups.
type Cache interface {
	// FetchQuery returns the cached value for key, or runs fetch and caches
	// its result. Concurrent and repeated calls with an equal key share a
	// single fetch. Failed fetches are not cached.
	FetchQuery(ctx context.Context, key Key, fetch Fetcher) ([]byte, error)
	// SetQueryData writes value for key directly.
	SetQueryData(ctx context.Context, key Key, value []byte) error
	// GetQueryData reads a cached value without fetching.
	GetQueryData(ctx context.Context, key Key) ([]byte, bool, error)
	// Purge drops every cached entry.
	Purge(ctx context.Context) error
}

// QueryCache deduplicates in-flight fetches in front of a Store.
type QueryCache struct {
	log   logrus.FieldLogger
	store Store
	group singleflight.Group
}

// New creates a query cache backed by store.
func New(log logrus.FieldLogger, store Store) *QueryCache {
	return &QueryCache{
		log:   log.WithField("component", "querycache"),
		store: store,
	}
}

// FetchQuery implements Cache. The shared fetch is detached from the
// initiating caller's cancellation so other waiters are not failed by it;
// every caller still stops waiting when its own ctx is done.
func (c *QueryCache) FetchQuery(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	leader := false

	ch := c.group.DoChan(key.String(), func() (any, error) {
		leader = true

		return c.resolve(detached, key, fetch)
	})

	select {
	case res := <-ch:
		if !leader {
			cacheLookupsTotal.WithLabelValues(key.Route, "shared").Inc()
		}

		if res.Err != nil {
			return nil, res.Err
		}

		value, _ := res.Val.([]byte)

		return value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve reads key from the store or runs fetch. It stores the value
// before returning, so the flight is only forgotten once a later caller
// can find the stored value.
func (c *QueryCache) resolve(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	storeKey := key.String()

	value, found, err := c.store.Get(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("read query cache: %w", err)
	}

	if found {
		cacheLookupsTotal.WithLabelValues(key.Route, "hit").Inc()

		return value, nil
	}

	cacheLookupsTotal.WithLabelValues(key.Route, "miss").Inc()

	start := time.Now()

	value, err = fetch(ctx)

	cacheFetchDuration.WithLabelValues(key.Route).Observe(time.Since(start).Seconds())

	if err != nil {
		cacheFetchErrorsTotal.WithLabelValues(key.Route).Inc()

		return nil, err
	}

	if err := c.store.Set(ctx, storeKey, value); err != nil {
		c.log.WithError(err).WithField("route", key.Route).Warn("Failed to store query result")
	}

	return value, nil
}

// SetQueryData implements Cache.
func (c *QueryCache) SetQueryData(ctx context.Context, key Key, value []byte) error {
	if err := c.store.Set(ctx, key.String(), value); err != nil {
		return fmt.Errorf("write query cache: %w", err)
	}

	return nil
}

// GetQueryData implements Cache.
func (c *QueryCache) GetQueryData(ctx context.Context, key Key) ([]byte, bool, error) {
	value, found, err := c.store.Get(ctx, key.String())
	if err != nil {
		return nil, false, fmt.Errorf("read query cache: %w", err)
	}

	return value, found, nil
}

// Purge implements Cache.
func (c *QueryCache) Purge(ctx context.Context) error {
	if err := c.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge query cache: %w", err)
	}

	return nil
}
