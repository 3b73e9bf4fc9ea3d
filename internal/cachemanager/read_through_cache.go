package cachemanager

import (
	"context"
	"sync/atomic"
	"time"
)

// LoadFunc produces the value for a key on a cache miss.
type LoadFunc[K ~string, V any] func(ctx context.Context, key K) (V, error)

// ReadThroughCache loads missing values and stores successful results.
// Load errors are returned to the caller and never cached.
type ReadThroughCache[K ~string, V any] struct {
	cache   CacheManager[K, V]
	load    LoadFunc[K, V]
	ttl     time.Duration
	refresh bool
	bypass  bool

	hits       atomic.Uint64
	misses     atomic.Uint64
	loadErrors atomic.Uint64
}

// Option configures a ReadThroughCache.
type Option func(*readThroughOptions)

type readThroughOptions struct {
	ttl     time.Duration
	refresh bool
	bypass  bool
}

// WithTTL sets the lifetime of stored values. The default defers to the
// backing cache's expiration.
func WithTTL(ttl time.Duration) Option {
	return func(o *readThroughOptions) { o.ttl = ttl }
}

// WithRefresh extends a value's lifetime on every hit, so only unused
// entries expire.
func WithRefresh() Option {
	return func(o *readThroughOptions) { o.refresh = true }
}

// WithBypass sends every call straight to the loader when skip is true.
func WithBypass(skip bool) Option {
	return func(o *readThroughOptions) { o.bypass = skip }
}

// NewReadThroughCache wraps cache with load.
func NewReadThroughCache[K ~string, V any](cache CacheManager[K, V], load LoadFunc[K, V], opts ...Option) *ReadThroughCache[K, V] {
	var o readThroughOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &ReadThroughCache[K, V]{
		cache:   cache,
		load:    load,
		ttl:     o.ttl,
		refresh: o.refresh,
		bypass:  o.bypass,
	}
}

// Get returns the cached value for key or loads and stores it.
// Concurrent misses on one key may each call the loader.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.bypass {
		return r.load(ctx, key)
	}

	var (
		value V
		ok    bool
	)
	if r.refresh {
		value, ok = r.cache.GetWithRefresh(ctx, key, r.ttl)
	} else {
		value, ok = r.cache.Get(ctx, key)
	}
	if ok {
		r.hits.Add(1)
		return value, nil
	}
	r.misses.Add(1)

	value, err := r.load(ctx, key)
	if err != nil {
		r.loadErrors.Add(1)
		return value, err
	}
	r.cache.Set(ctx, key, value, r.ttl)
	return value, nil
}

// Enabled reports whether lookups go through the cache.
func (r *ReadThroughCache[K, V]) Enabled() bool {
	return !r.bypass
}

// Stats returns traffic counters. Bypassed calls are not counted.
func (r *ReadThroughCache[K, V]) Stats() Stats {
	s := Stats{
		Hits:       r.hits.Load(),
		Misses:     r.misses.Load(),
		LoadErrors: r.loadErrors.Load(),
	}
	if ev, ok := r.cache.(interface{ Evictions() uint64 }); ok {
		s.Evictions = ev.Evictions()
	}
	return s
}
