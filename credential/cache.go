package credential

import (
	"sync"
	"time"

	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/stephnangue/porter/helper"
)

const (
	// DefaultCacheTTL is how long a credential stays cached regardless of
	// its own expiry
	DefaultCacheTTL = 15 * time.Minute

	// DefaultRefreshBuffer is the margin before token expiry at which a
	// cached credential is no longer handed out, so a token cannot expire
	// mid-request
	DefaultRefreshBuffer = 5 * time.Minute
)

// CacheKey builds the deterministic cache key for a (user, provider, scopes)
// request. Scopes are de-duplicated and sorted so that semantically identical
// requests with differently-ordered scope lists hit the same entry. The parts
// are hashed over an unambiguous separator: user ids and scope names are
// opaque strings (scopes like "read:org" contain ':'), so a plain join could
// collide two distinct identities onto one entry.
func CacheKey(userID string, provider Provider, scopes []string) string {
	canonical := strutil.RemoveDuplicates(scopes, false)
	parts := append([]string{userID, string(provider)}, canonical...)
	return helper.HashParts(parts...)
}

// cacheEntry wraps a cached credential with its insertion-time cache expiry.
// Entries are never mutated after creation.
type cacheEntry struct {
	cred           *Credential
	cacheExpiresAt time.Time
}

// CacheStats reports entry counts for operational visibility
type CacheStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// TokenCache provides thread-safe credential caching with two independent
// expiration checks: the cache TTL stamped at insertion, and the token's own
// expiry minus a refresh buffer. No I/O; pure state plus clock.
type TokenCache struct {
	mu            sync.Mutex
	entries       map[string]*cacheEntry
	refreshBuffer time.Duration

	// nowFn is replaceable so tests can drive both expiry rules
	nowFn func() time.Time
}

// NewTokenCache creates a new token cache. A refreshBuffer of 0 uses the
// default.
func NewTokenCache(refreshBuffer time.Duration) *TokenCache {
	if refreshBuffer <= 0 {
		refreshBuffer = DefaultRefreshBuffer
	}
	return &TokenCache{
		entries:       make(map[string]*cacheEntry),
		refreshBuffer: refreshBuffer,
		nowFn:         time.Now,
	}
}

// expired reports whether an entry is past its cache TTL or within the
// refresh buffer of the token's own expiry
func (tc *TokenCache) expired(entry *cacheEntry, now time.Time) bool {
	if now.After(entry.cacheExpiresAt) {
		return true
	}
	return entry.cred.ExpiresWithin(now, tc.refreshBuffer)
}

// Get returns the cached credential for key if present and not expired.
// An expired entry is deleted on observation.
func (tc *TokenCache) Get(key string) (*Credential, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	entry, ok := tc.entries[key]
	if !ok {
		return nil, false
	}

	if tc.expired(entry, tc.nowFn()) {
		delete(tc.entries, key)
		return nil, false
	}

	return entry.cred, true
}

// Put inserts or overwrites an entry with cacheExpiresAt = now + ttl
func (tc *TokenCache) Put(key string, cred *Credential, ttl time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.entries[key] = &cacheEntry{
		cred:           cred,
		cacheExpiresAt: tc.nowFn().Add(ttl),
	}
}

// Invalidate removes all entries for the user, optionally scoped to one
// provider (provider "" matches all). Returns the number of entries removed.
// Used when a downstream 401 indicates a cached token was revoked.
func (tc *TokenCache) Invalidate(userID string, provider Provider) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	removed := 0
	for key, entry := range tc.entries {
		if entry.cred.UserID != userID {
			continue
		}
		if provider != "" && entry.cred.Provider != provider {
			continue
		}
		delete(tc.entries, key)
		removed++
	}
	return removed
}

// Sweep removes all expired entries and returns the number removed.
// Invoked opportunistically by the broker on cache misses; the workload is
// request-driven, so there is no background timer.
func (tc *TokenCache) Sweep() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.nowFn()
	removed := 0
	for key, entry := range tc.entries {
		if tc.expired(entry, now) {
			delete(tc.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns entry counts at this instant
func (tc *TokenCache) Stats() CacheStats {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.nowFn()
	stats := CacheStats{Total: len(tc.entries)}
	for _, entry := range tc.entries {
		if tc.expired(entry, now) {
			stats.Expired++
		} else {
			stats.Active++
		}
	}
	return stats
}
