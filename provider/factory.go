package provider

import (
	"context"
	"fmt"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/stephnangue/porter/credential"
	"github.com/stephnangue/porter/logger"
)

// Default API endpoints and scopes per provider
const (
	DefaultGitHubBaseURL = "https://api.github.com"
	DefaultGitLabBaseURL = "https://gitlab.com"
)

var (
	defaultGitHubScopes = []string{"read:org", "read:user"}
	defaultGitLabScopes = []string{"read_api"}
)

// ClientConfig configures one provider's API client
type ClientConfig struct {
	BaseURL       string
	DefaultScopes []string
}

// CredentialSource is the slice of the broker the factory consumes
type CredentialSource interface {
	CredentialInvalidator
	GetCredential(ctx context.Context, userID string, provider credential.Provider, scopes []string) (*credential.Credential, bool)
}

// ClientFactory instantiates provider-specific API clients backed by
// credentials from the broker. It is a thin consumer of the broker: all
// caching and transport lifecycle concerns live there.
type ClientFactory struct {
	broker CredentialSource
	log    logger.Logger

	configs map[credential.Provider]ClientConfig

	// One retrying HTTP client per provider, shared by all bound clients
	httpClients map[credential.Provider]*retryablehttp.Client
}

// NewClientFactory creates a factory. Missing config fields fall back to the
// provider defaults.
func NewClientFactory(broker CredentialSource, configs map[credential.Provider]ClientConfig, log logger.Logger) *ClientFactory {
	merged := map[credential.Provider]ClientConfig{
		credential.ProviderGitHub: {BaseURL: DefaultGitHubBaseURL, DefaultScopes: defaultGitHubScopes},
		credential.ProviderGitLab: {BaseURL: DefaultGitLabBaseURL, DefaultScopes: defaultGitLabScopes},
	}
	for p, cfg := range configs {
		base := merged[p]
		if cfg.BaseURL != "" {
			base.BaseURL = cfg.BaseURL
		}
		if len(cfg.DefaultScopes) > 0 {
			base.DefaultScopes = cfg.DefaultScopes
		}
		merged[p] = base
	}

	httpClients := make(map[credential.Provider]*retryablehttp.Client, len(merged))
	for p := range merged {
		httpClients[p] = newRetryingClient()
	}

	return &ClientFactory{
		broker:      broker,
		log:         log,
		configs:     merged,
		httpClients: httpClients,
	}
}

// newRetryingClient builds the provider-facing HTTP client. Provider APIs
// rate-limit aggressively, so 429 and 5xx are retried here; the broker and
// issuer never retry.
func newRetryingClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 4 * time.Second
	client.Logger = nil
	return client
}

// Client returns an API client for (user, provider) holding a valid bearer
// credential. Scopes nil or empty uses the provider's default scope set.
// Returns ErrNoCredential when the broker reports absent.
func (f *ClientFactory) Client(ctx context.Context, userID string, p credential.Provider, scopes []string) (AccountClient, error) {
	cfg, ok := f.configs[p]
	if !ok {
		return nil, fmt.Errorf("unknown provider '%s'", p)
	}
	if len(scopes) == 0 {
		scopes = cfg.DefaultScopes
	}

	cred, ok := f.broker.GetCredential(ctx, userID, p, scopes)
	if !ok {
		return nil, fmt.Errorf("%w: user '%s' provider '%s'", ErrNoCredential, userID, p)
	}

	switch p {
	case credential.ProviderGitHub:
		return newGitHubClient(cfg.BaseURL, cred, f.broker, f.httpClients[p], f.log), nil
	case credential.ProviderGitLab:
		return newGitLabClient(cfg.BaseURL, cred, f.broker, f.httpClients[p], f.log), nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", p)
	}
}
