package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "porter.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
log_level  = "debug"
log_format = "json"

response_cache_ttl = "30s"

listener {
  address = "127.0.0.1:8300"
}

issuer {
  address        = "http://grantd.internal:8200"
  timeout        = "5s"
  cache_ttl      = "15m"
  refresh_buffer = "5m"
  rate_limit     = 50
}

provider "github" {
  base_url       = "https://api.github.com"
  default_scopes = ["read:org"]
}

provider "gitlab" {}
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8300", cfg.Listener.Address)
	assert.Equal(t, "http://grantd.internal:8200", cfg.Issuer.Address)
	assert.Equal(t, float64(50), cfg.Issuer.RateLimit)

	timeout, err := cfg.Issuer.GetTimeout(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)

	ttl, err := cfg.Issuer.GetCacheTTL(0)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ttl)

	buffer, err := cfg.Issuer.GetRefreshBuffer(0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, buffer)

	respTTL, err := cfg.GetResponseCacheTTL(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, respTTL)

	gh, err := cfg.GetProvider("github")
	require.NoError(t, err)
	assert.Equal(t, []string{"read:org"}, gh.DefaultScopes)

	_, err = cfg.GetProvider("bitbucket")
	require.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
listener {
  address = "127.0.0.1:8300"
}

issuer {
  address = "http://grantd.internal:8200"
}
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	timeout, err := cfg.Issuer.GetTimeout(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)
}

func TestConfig_ValidateErrors(t *testing.T) {
	cfg := &Config{
		Issuer: &IssuerBlock{
			Timeout: "not-a-duration",
		},
		Providers: []ProviderBlock{
			{Name: "github"},
			{Name: "github"},
			{Name: "bitbucket"},
		},
		ResponseCacheTTL: "bogus",
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener block is required")
	assert.Contains(t, err.Error(), "issuer address is required")
	assert.Contains(t, err.Error(), "issuer timeout")
	assert.Contains(t, err.Error(), "duplicate provider block 'github'")
	assert.Contains(t, err.Error(), "unknown provider 'bitbucket'")
	assert.Contains(t, err.Error(), "response_cache_ttl")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
}
