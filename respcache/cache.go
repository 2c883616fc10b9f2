// Package respcache memoizes aggregated API responses: a key to JSON blob
// map with a fixed TTL. Unlike the credential cache it has no dual-expiry or
// invalidation semantics, so it rides on ristretto directly.
package respcache

import (
	"fmt"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/stephnangue/porter/helper"
	"github.com/stephnangue/porter/logger"
)

// DefaultTTL is how long a memoized response stays valid
const DefaultTTL = 60 * time.Second

// Cache is a TTL-bounded response memoizer
type Cache struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
	log   logger.Logger
}

// New creates a response cache. A ttl of 0 uses the default.
func New(ttl time.Duration, log logger.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100_000,
		MaxCost:     32 << 20, // 32 MB
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	return &Cache{
		cache: cache,
		ttl:   ttl,
		log:   log,
	}, nil
}

// Key builds a deterministic cache key from request identity parts
func Key(parts ...string) string {
	return helper.HashParts(parts...)
}

// Get returns the memoized blob for key, if still valid
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.cache.Get(key)
}

// Set memoizes blob under key for the cache TTL
func (c *Cache) Set(key string, blob []byte) {
	c.cache.SetWithTTL(key, blob, int64(len(blob)), c.ttl)

	// Ristretto applies sets asynchronously
	c.cache.Wait()
}

// Invalidate drops one memoized response
func (c *Cache) Invalidate(key string) {
	c.cache.Del(key)
}

// Close releases the cache resources
func (c *Cache) Close() {
	c.cache.Close()
	c.log.Trace("response cache closed")
}
