package filter

import (
	"context"
	"time"

	"github.com/zjrosen/svcreg/internal/cachemanager"
	"github.com/zjrosen/svcreg/internal/log"
)

// Cache memoizes compiled filters by their source text. Compile errors are
// not cached. A nil *Cache compiles every time.
type Cache struct {
	reader *cachemanager.ReadThroughCache[string, *Filter]
}

// NewCache builds a Cache on top of manager. Items are kept for ttl after
// their last use. When enabled is false the cache is bypassed.
func NewCache(manager cachemanager.CacheManager[string, *Filter], ttl time.Duration, enabled bool) *Cache {
	return &Cache{
		reader: cachemanager.NewReadThroughCache[string, *Filter](manager, compile,
			cachemanager.WithTTL(ttl),
			cachemanager.WithRefresh(),
			cachemanager.WithBypass(!enabled),
		),
	}
}

// NewInMemoryCache returns a go-cache backed Cache.
func NewInMemoryCache(ttl, cleanupInterval time.Duration, enabled bool) *Cache {
	manager := cachemanager.NewInMemory[string, *Filter]("filters", ttl, cleanupInterval)
	return NewCache(manager, ttl, enabled)
}

// Compile returns the compiled filter for text, compiling it on a miss.
func (c *Cache) Compile(ctx context.Context, text string) (*Filter, error) {
	if c == nil {
		return Compile(text)
	}
	return c.reader.Get(ctx, text)
}

// Stats reports cache traffic. A nil or disabled cache reports zeros.
func (c *Cache) Stats() cachemanager.Stats {
	if c == nil {
		return cachemanager.Stats{}
	}
	return c.reader.Stats()
}

func compile(_ context.Context, text string) (*Filter, error) {
	f, err := Compile(text)
	if err != nil {
		log.Debug(log.CatFilter, "filter rejected", "filter", text, "error", err)
		return nil, err
	}
	log.Debug(log.CatFilter, "filter compiled", "filter", f.String())
	return f, nil
}
