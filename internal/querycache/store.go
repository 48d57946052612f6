package querycache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Compile-time interface compliance check.
var _ Store = (*MemoryStore)(nil)

// Store persists raw query responses by rendered key.
type Store interface {
	// Get returns the value for key. A missing or expired key is reported
	// as found == false with a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Purge drops every entry the store owns.
	Purge(ctx context.Context) error
}

// MemoryStore is an in-process LRU store with an optional TTL.
// Thread-safe for concurrent access.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryStore creates an LRU store holding at most maxEntries values.
// A zero maxEntries leaves the store unbounded and a zero ttl keeps values
// until they are evicted.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl),
	}
}

// Get returns a cached value and marks it most recently used.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := s.lru.Get(key)

	return value, ok, nil
}

// Set stores value, evicting the least recently used entry when full.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.lru.Add(key, value)
	memoryStoreEntries.Set(float64(s.Len()))

	return nil
}

// Purge drops every entry.
func (s *MemoryStore) Purge(_ context.Context) error {
	s.lru.Purge()
	memoryStoreEntries.Set(0)

	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
