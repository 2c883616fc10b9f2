package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/stephnangue/porter/credential"
	"github.com/stephnangue/porter/logger"
)

// maxAccountsBodySize limits provider response body reads
const maxAccountsBodySize = 4 << 20 // 4MB

// GitHubClient lists the organizations a user belongs to
type GitHubClient struct {
	baseURL     string
	cred        *credential.Credential
	invalidator CredentialInvalidator
	http        *retryablehttp.Client
	log         logger.Logger
}

func newGitHubClient(baseURL string, cred *credential.Credential, invalidator CredentialInvalidator, client *retryablehttp.Client, log logger.Logger) *GitHubClient {
	return &GitHubClient{
		baseURL:     baseURL,
		cred:        cred,
		invalidator: invalidator,
		http:        client,
		log:         log,
	}
}

// Provider returns the provider this client talks to
func (c *GitHubClient) Provider() credential.Provider {
	return credential.ProviderGitHub
}

// githubOrg is the provider-specific wire shape
type githubOrg struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

// ListAccounts returns the user's organizations normalized into the unified
// schema. A 401 invalidates the cached credential so the next request forces
// a re-fetch from the issuer.
func (c *GitHubClient) ListAccounts(ctx context.Context) ([]Account, error) {
	body, err := doProviderGet(ctx, c.http, c.baseURL+"/user/orgs", c.cred.AccessToken, map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	})
	if err != nil {
		var authErr *authError
		if errors.As(err, &authErr) {
			c.invalidator.Invalidate(c.cred.UserID, credential.ProviderGitHub)
			c.log.Info("stale github credential invalidated",
				logger.String("user_id", c.cred.UserID))
		}
		return nil, err
	}

	var orgs []githubOrg
	if err := json.Unmarshal(body, &orgs); err != nil {
		return nil, fmt.Errorf("%w: decode github response: %v", ErrProviderUnavailable, err)
	}

	return normalizeGitHubOrgs(orgs), nil
}

// normalizeGitHubOrgs reshapes GitHub organization JSON into unified accounts
func normalizeGitHubOrgs(orgs []githubOrg) []Account {
	accounts := make([]Account, 0, len(orgs))
	for _, org := range orgs {
		accounts = append(accounts, Account{
			ID:        strconv.FormatInt(org.ID, 10),
			Provider:  string(credential.ProviderGitHub),
			Slug:      org.Login,
			Name:      org.Description,
			WebURL:    "https://github.com/" + org.Login,
			AvatarURL: org.AvatarURL,
		})
	}
	return accounts
}

// authError marks a 401 from the provider API
type authError struct {
	status int
}

func (e *authError) Error() string {
	return fmt.Sprintf("provider rejected credential (status %d)", e.status)
}

// doProviderGet executes one authenticated GET against a provider API and
// returns the response body. Retries for 429/5xx are handled by the
// retryable client.
func doProviderGet(ctx context.Context, client *retryablehttp.Client, url, token string, headers map[string]string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAccountsBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &authError{status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	return body, nil
}
