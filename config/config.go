package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the configuration for the porter server.
type Config struct {
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`
	LogFile   string `hcl:"log_file,optional"`

	ResponseCacheTTL string `hcl:"response_cache_ttl,optional"`

	Listener  *ListenerBlock  `hcl:"listener,block"`
	Issuer    *IssuerBlock    `hcl:"issuer,block"`
	Providers []ProviderBlock `hcl:"provider,block"`
}

// ListenerBlock configures the API listener
type ListenerBlock struct {
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

// IssuerBlock configures the token-issuing backend connection and the
// credential cache timings
type IssuerBlock struct {
	Address       string  `hcl:"address"`
	Timeout       string  `hcl:"timeout,optional"`
	CacheTTL      string  `hcl:"cache_ttl,optional"`
	RefreshBuffer string  `hcl:"refresh_buffer,optional"`
	RateLimit     float64 `hcl:"rate_limit,optional"`
	RateBurst     int     `hcl:"rate_burst,optional"`
}

// ProviderBlock configures one account provider
type ProviderBlock struct {
	Name          string   `hcl:"name,label"`
	BaseURL       string   `hcl:"base_url,optional"`
	DefaultScopes []string `hcl:"default_scopes,optional"`
}

// LoadConfig loads an HCL config file
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// duration parses an optional duration string, applying def when empty
func duration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	return parseutil.ParseDurationSecond(value)
}

// GetTimeout returns the issuer round-trip timeout
func (b *IssuerBlock) GetTimeout(def time.Duration) (time.Duration, error) {
	return duration(b.Timeout, def)
}

// GetCacheTTL returns the credential cache TTL
func (b *IssuerBlock) GetCacheTTL(def time.Duration) (time.Duration, error) {
	return duration(b.CacheTTL, def)
}

// GetRefreshBuffer returns the margin before token expiry at which cached
// credentials stop being served
func (b *IssuerBlock) GetRefreshBuffer(def time.Duration) (time.Duration, error) {
	return duration(b.RefreshBuffer, def)
}

// GetResponseCacheTTL returns the response memoization TTL
func (c *Config) GetResponseCacheTTL(def time.Duration) (time.Duration, error) {
	return duration(c.ResponseCacheTTL, def)
}

// GetProvider returns a provider block by its name label
func (c *Config) GetProvider(name string) (*ProviderBlock, error) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("provider '%s' not found", name)
}

// knownProviders mirrors the providers the credential package supports.
// Duplicated here to keep config free of domain imports.
var knownProviders = map[string]bool{
	"github": true,
	"gitlab": true,
}

// Validate checks the configuration, accumulating all problems
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Listener == nil {
		result = multierror.Append(result, fmt.Errorf("a listener block is required"))
	} else if c.Listener.Address == "" {
		result = multierror.Append(result, fmt.Errorf("listener address is required"))
	}

	if c.Issuer == nil {
		result = multierror.Append(result, fmt.Errorf("an issuer block is required"))
	} else {
		if c.Issuer.Address == "" {
			result = multierror.Append(result, fmt.Errorf("issuer address is required"))
		}
		for field, value := range map[string]string{
			"timeout":        c.Issuer.Timeout,
			"cache_ttl":      c.Issuer.CacheTTL,
			"refresh_buffer": c.Issuer.RefreshBuffer,
		} {
			if _, err := duration(value, 0); err != nil {
				result = multierror.Append(result, fmt.Errorf("issuer %s: %w", field, err))
			}
		}
	}

	seen := map[string]bool{}
	for _, p := range c.Providers {
		if !knownProviders[p.Name] {
			result = multierror.Append(result, fmt.Errorf("unknown provider '%s'", p.Name))
		}
		if seen[p.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate provider block '%s'", p.Name))
		}
		seen[p.Name] = true
	}

	if _, err := duration(c.ResponseCacheTTL, 0); err != nil {
		result = multierror.Append(result, fmt.Errorf("response_cache_ttl: %w", err))
	}

	return result.ErrorOrNil()
}
