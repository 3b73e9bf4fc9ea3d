// Package cachemanager provides typed caches over patrickmn/go-cache.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-item expiration.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// GetWithRefresh is Get that also pushes the item's expiry to now+ttl.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Len() int
}

// Stats counts read-through traffic.
type Stats struct {
	Hits       uint64
	Misses     uint64
	LoadErrors uint64
	// Evictions is filled in when the backing cache tracks them.
	Evictions uint64
}

// HitRatio is Hits over all lookups, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
