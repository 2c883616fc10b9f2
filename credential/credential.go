package credential

import (
	"fmt"
	"time"
)

// Provider identifies an external account provider that porter aggregates.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// Providers returns all supported providers
func Providers() []Provider {
	return []Provider{ProviderGitHub, ProviderGitLab}
}

// ParseProvider parses a provider name
func ParseProvider(name string) (Provider, error) {
	switch Provider(name) {
	case ProviderGitHub:
		return ProviderGitHub, nil
	case ProviderGitLab:
		return ProviderGitLab, nil
	default:
		return "", fmt.Errorf("unknown provider '%s'", name)
	}
}

// Credential is a short-lived access token minted by the token issuer for a
// (user, provider) pair, plus the metadata needed to use and cache it.
//
// Provider clients read AccessToken to inject Bearer authentication into
// outbound API calls. Instances are cached by the Broker and must be treated
// as immutable once constructed; an expired credential is dropped from the
// cache and re-fetched, never refreshed in place.
type Credential struct {
	// Identity
	UserID   string   // Owning user
	Provider Provider // Provider the token is valid for

	// Token data
	AccessToken  string // Opaque bearer token
	RefreshToken string // Optional; empty when the issuer keeps the refresh token itself

	// ExpiresAt is the token's own expiry as reported by the issuer.
	// Zero when the issuer did not report one.
	ExpiresAt time.Time

	// Scopes actually granted (may be wider than requested)
	Scopes []string
}

// ExpiresWithin reports whether the token expires within d of now.
// Always false for tokens without a reported expiry.
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt)
}
