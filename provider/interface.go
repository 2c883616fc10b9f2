package provider

import (
	"context"
	"errors"

	"github.com/stephnangue/porter/credential"
)

// ErrNoCredential is returned when no valid credential is available for the
// requested (user, provider) pair. The caller decides whether that becomes a
// retry, a re-authorization prompt or a 5xx to its own caller.
var ErrNoCredential = errors.New("no credential available")

// ErrProviderUnavailable is returned on provider API failures that are not
// authentication related
var ErrProviderUnavailable = errors.New("provider unavailable")

// Account is the unified shape all provider responses are normalized into
type Account struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	Slug      string `json:"slug"`
	Name      string `json:"name,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AccountClient is a provider-specific API client bound to one user's
// credential
type AccountClient interface {
	// Provider returns the provider this client talks to
	Provider() credential.Provider

	// ListAccounts returns the accounts (organizations/groups) the user
	// belongs to, normalized into the unified schema
	ListAccounts(ctx context.Context) ([]Account, error)
}

// CredentialInvalidator is the slice of the broker the clients need to react
// to a downstream 401
type CredentialInvalidator interface {
	Invalidate(userID string, provider credential.Provider) int
}
