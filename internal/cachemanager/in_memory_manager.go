package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/svcreg/internal/log"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// InMemory is the go-cache backed CacheManager. name labels its log lines.
type InMemory[K ~string, V any] struct {
	name      string
	cache     *gocache.Cache
	evictions atomic.Uint64
}

var _ CacheManager[string, int] = (*InMemory[string, int])(nil)

// NewInMemory creates a cache whose items expire after expiration unless
// set with their own ttl. Expired items are swept every cleanupInterval;
// zero disables sweeping and expired items are then dropped on read.
func NewInMemory[K ~string, V any](name string, expiration, cleanupInterval time.Duration) *InMemory[K, V] {
	m := &InMemory[K, V]{
		name:  name,
		cache: gocache.New(expiration, cleanupInterval),
	}
	m.cache.OnEvicted(func(key string, _ any) {
		m.evictions.Add(1)
		log.Debug(log.CatCache, "evicted", "cache", m.name, "key", key)
	})
	return m
}

// Get returns the value stored under key. A value of the wrong type is
// reported and treated as a miss.
func (m *InMemory[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V

	raw, found := m.cache.Get(string(key))
	if !found {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "cached value has unexpected type", "cache", m.name, "key", key)
		return zero, false
	}
	return v, true
}

// GetWithRefresh re-stores a hit so it lives for another ttl.
func (m *InMemory[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	v, ok := m.Get(ctx, key)
	if ok {
		m.cache.Set(string(key), v, ttl)
	}
	return v, ok
}

// Set stores value for ttl. gocache.DefaultExpiration uses the cache's
// expiration and gocache.NoExpiration keeps it until evicted.
func (m *InMemory[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	m.cache.Set(string(key), value, ttl)
}

// Len counts stored items, including expired ones not yet swept.
func (m *InMemory[K, V]) Len() int {
	return m.cache.ItemCount()
}

// Evictions counts items removed by expiry sweeps.
func (m *InMemory[K, V]) Evictions() uint64 {
	return m.evictions.Load()
}

// Sweep removes expired items now instead of waiting for the janitor.
func (m *InMemory[K, V]) Sweep() {
	m.cache.DeleteExpired()
}
