package credential

import (
	"context"
	"errors"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/stephnangue/porter/logger"
)

// TokenFetcher abstracts the issuer call so the broker can be tested with a
// fake issuer
type TokenFetcher interface {
	Fetch(ctx context.Context, userID string, provider Provider, scopes []string) (*Credential, error)
}

// Broker is the public entry point used by request handlers: it composes the
// token cache, the issuer client and the shared transport lifecycle behind
// one "get a valid credential" operation.
//
// Construct one Broker per process and pass it by reference; a second broker
// defeats the cache and duplicates connections. Concurrent misses for the
// same key are tolerated and both fetches populate the cache with equivalent
// data; the issuer call is idempotent, so the simpler design wins over
// single-flight deduplication.
type Broker struct {
	log      logger.Logger
	cache    *TokenCache
	fetcher  TokenFetcher
	cacheTTL time.Duration
}

// NewBroker creates a credential broker. A cacheTTL of 0 uses the default.
func NewBroker(cache *TokenCache, fetcher TokenFetcher, cacheTTL time.Duration, log logger.Logger) *Broker {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Broker{
		log:      log,
		cache:    cache,
		fetcher:  fetcher,
		cacheTTL: cacheTTL,
	}
}

// GetCredential returns a valid credential for (user, provider, scopes), or
// absent. Absence is a normal outcome, not an error: the caller decides how
// to surface it. The broker never retries; transient issuer failures are
// absent too, and a retry policy belongs to the caller.
func (b *Broker) GetCredential(ctx context.Context, userID string, provider Provider, scopes []string) (*Credential, bool) {
	key := CacheKey(userID, provider, scopes)

	if cred, ok := b.cache.Get(key); ok {
		metrics.IncrCounter([]string{"credential", "cache", "hit"}, 1)
		return cred, true
	}
	metrics.IncrCounter([]string{"credential", "cache", "miss"}, 1)

	// Opportunistic cleanup; the workload is request-driven, so expired
	// entries are collected here rather than on a timer.
	b.cache.Sweep()

	cred, err := b.fetcher.Fetch(ctx, userID, provider, scopes)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			metrics.IncrCounter([]string{"credential", "issuer", "not_found"}, 1)
			b.log.Debug("no token on record",
				logger.String("user_id", userID),
				logger.String("provider", string(provider)))
		case errors.Is(err, ErrIssuerForbidden):
			metrics.IncrCounter([]string{"credential", "issuer", "forbidden"}, 1)
			b.log.Debug("issuer denied token issuance",
				logger.String("user_id", userID),
				logger.String("provider", string(provider)))
		default:
			metrics.IncrCounter([]string{"credential", "issuer", "unavailable"}, 1)
			b.log.Warn("issuer unavailable",
				logger.String("user_id", userID),
				logger.String("provider", string(provider)),
				logger.Err(err))
		}
		// Negative results are not cached: a grant created after this miss
		// is picked up on the very next request.
		return nil, false
	}

	b.cache.Put(key, cred, b.cacheTTL)
	return cred, true
}

// Invalidate removes cached credentials for the user, optionally scoped to
// one provider. Callable when a downstream 401 from the provider API shows
// the cached token is stale, so the next request forces a re-fetch.
func (b *Broker) Invalidate(userID string, provider Provider) int {
	removed := b.cache.Invalidate(userID, provider)
	if removed > 0 {
		b.log.Info("credentials invalidated",
			logger.String("user_id", userID),
			logger.String("provider", string(provider)),
			logger.Int("removed", removed))
	}
	return removed
}

// CacheStats exposes cache entry counts for operational visibility
func (b *Broker) CacheStats() CacheStats {
	return b.cache.Stats()
}
