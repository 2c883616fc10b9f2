package credential

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the cache's notion of time in tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *TokenCache {
	tc := NewTokenCache(DefaultRefreshBuffer)
	tc.nowFn = clock.Now
	return tc
}

func testCredential(userID string, provider Provider, scopes []string, expiresAt time.Time) *Credential {
	return &Credential{
		UserID:      userID,
		Provider:    provider,
		AccessToken: "tok-" + userID + "-" + string(provider),
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
	}
}

func TestCacheKey_ScopeOrderInvariance(t *testing.T) {
	k1 := CacheKey("u1", ProviderGitHub, []string{"read:org", "repo"})
	k2 := CacheKey("u1", ProviderGitHub, []string{"repo", "read:org"})
	assert.Equal(t, k1, k2)

	// Duplicates collapse too
	k3 := CacheKey("u1", ProviderGitHub, []string{"repo", "repo", "read:org"})
	assert.Equal(t, k1, k3)
}

func TestCacheKey_DistinctIdentities(t *testing.T) {
	base := CacheKey("u1", ProviderGitHub, []string{"repo"})
	assert.NotEqual(t, base, CacheKey("u2", ProviderGitHub, []string{"repo"}))
	assert.NotEqual(t, base, CacheKey("u1", ProviderGitLab, []string{"repo"}))
	assert.NotEqual(t, base, CacheKey("u1", ProviderGitHub, []string{"repo", "read:org"}))
}

func TestCacheKey_SeparatorCharactersInParts(t *testing.T) {
	// User ids are opaque and scope names contain ':' (read:org) and ','.
	// Identities whose parts merely concatenate to the same string must
	// still map to different entries.
	tests := []struct {
		name string
		a, b string
	}{
		{
			"colon in scope vs colon in user id",
			CacheKey("alice", ProviderGitLab, []string{"github:read"}),
			CacheKey("alice:gitlab", ProviderGitHub, []string{"read"}),
		},
		{
			"comma inside one scope vs two scopes",
			CacheKey("u1", ProviderGitHub, []string{"a,b"}),
			CacheKey("u1", ProviderGitHub, []string{"a", "b"}),
		},
		{
			"scope text spilling into the user id",
			CacheKey("u1:github:repo", ProviderGitHub, nil),
			CacheKey("u1", ProviderGitHub, []string{"repo"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a, tt.b)
		})
	}
}

func TestTokenCache_PutGetRoundtrip(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	cred := testCredential("u1", ProviderGitHub, []string{"repo"}, time.Time{})
	key := CacheKey("u1", ProviderGitHub, []string{"repo"})

	tc.Put(key, cred, 15*time.Minute)

	got, ok := tc.Get(key)
	require.True(t, ok)
	assert.Equal(t, cred, got)
}

func TestTokenCache_CacheTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	key := CacheKey("u1", ProviderGitHub, []string{"repo"})
	tc.Put(key, testCredential("u1", ProviderGitHub, []string{"repo"}, time.Time{}), 15*time.Minute)

	clock.Advance(14 * time.Minute)
	_, ok := tc.Get(key)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = tc.Get(key)
	assert.False(t, ok)

	// Entry was removed, not just hidden
	assert.Equal(t, 0, tc.Stats().Total)
}

func TestTokenCache_DualExpiration(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	// Token expires in 1h, cache TTL is 24h: the refresh buffer must win.
	key := CacheKey("u1", ProviderGitHub, []string{"repo"})
	cred := testCredential("u1", ProviderGitHub, []string{"repo"}, clock.Now().Add(time.Hour))
	tc.Put(key, cred, 24*time.Hour)

	clock.Advance(54 * time.Minute)
	_, ok := tc.Get(key)
	assert.True(t, ok, "outside the refresh buffer, entry must be served")

	clock.Advance(2 * time.Minute) // now+5m >= expiry
	_, ok = tc.Get(key)
	assert.False(t, ok, "within the refresh buffer, entry must be absent")
}

func TestTokenCache_NoReportedExpiry(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	// Without a token expiry only the cache TTL applies
	key := CacheKey("u1", ProviderGitHub, []string{"repo"})
	tc.Put(key, testCredential("u1", ProviderGitHub, []string{"repo"}, time.Time{}), time.Hour)

	clock.Advance(59 * time.Minute)
	_, ok := tc.Get(key)
	assert.True(t, ok)
}

func TestTokenCache_InvalidateScoping(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	put := func(user string, provider Provider) {
		key := CacheKey(user, provider, []string{"read"})
		tc.Put(key, testCredential(user, provider, []string{"read"}, time.Time{}), time.Hour)
	}
	put("u1", ProviderGitHub)
	put("u1", ProviderGitLab)
	put("u2", ProviderGitHub)

	removed := tc.Invalidate("u1", ProviderGitHub)
	assert.Equal(t, 1, removed)

	_, ok := tc.Get(CacheKey("u1", ProviderGitHub, []string{"read"}))
	assert.False(t, ok)
	_, ok = tc.Get(CacheKey("u1", ProviderGitLab, []string{"read"}))
	assert.True(t, ok)
	_, ok = tc.Get(CacheKey("u2", ProviderGitHub, []string{"read"}))
	assert.True(t, ok)
}

func TestTokenCache_InvalidateAllProviders(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	for _, p := range Providers() {
		key := CacheKey("u1", p, []string{"read"})
		tc.Put(key, testCredential("u1", p, []string{"read"}, time.Time{}), time.Hour)
	}

	removed := tc.Invalidate("u1", "")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, tc.Stats().Total)
}

func TestTokenCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	tc.Put("short", testCredential("u1", ProviderGitHub, nil, time.Time{}), time.Minute)
	tc.Put("long", testCredential("u2", ProviderGitHub, nil, time.Time{}), time.Hour)

	clock.Advance(5 * time.Minute)

	stats := tc.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)

	removed := tc.Sweep()
	assert.Equal(t, 1, removed)

	stats = tc.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Expired)
}

func TestTokenCache_PutOverwrites(t *testing.T) {
	clock := newFakeClock()
	tc := newTestCache(clock)

	key := CacheKey("u1", ProviderGitHub, []string{"repo"})
	first := testCredential("u1", ProviderGitHub, []string{"repo"}, time.Time{})
	second := &Credential{UserID: "u1", Provider: ProviderGitHub, AccessToken: "fresh"}

	tc.Put(key, first, time.Hour)
	tc.Put(key, second, time.Hour)

	got, ok := tc.Get(key)
	require.True(t, ok)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, 1, tc.Stats().Total)
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	tc := NewTokenCache(DefaultRefreshBuffer)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", n%4)
			key := CacheKey(user, ProviderGitHub, []string{"repo"})
			for j := 0; j < 200; j++ {
				tc.Put(key, testCredential(user, ProviderGitHub, []string{"repo"}, time.Time{}), time.Hour)
				tc.Get(key)
				tc.Sweep()
				tc.Stats()
				if j%50 == 0 {
					tc.Invalidate(user, ProviderGitHub)
				}
			}
		}(i)
	}
	wg.Wait()
}
