package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/stephnangue/porter/credential"
	"github.com/stephnangue/porter/logger"
)

// GitLabClient lists the groups a user belongs to
type GitLabClient struct {
	baseURL     string
	cred        *credential.Credential
	invalidator CredentialInvalidator
	http        *retryablehttp.Client
	log         logger.Logger
}

func newGitLabClient(baseURL string, cred *credential.Credential, invalidator CredentialInvalidator, client *retryablehttp.Client, log logger.Logger) *GitLabClient {
	return &GitLabClient{
		baseURL:     baseURL,
		cred:        cred,
		invalidator: invalidator,
		http:        client,
		log:         log,
	}
}

// Provider returns the provider this client talks to
func (c *GitLabClient) Provider() credential.Provider {
	return credential.ProviderGitLab
}

// gitlabGroup is the provider-specific wire shape
type gitlabGroup struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	WebURL    string `json:"web_url"`
	AvatarURL string `json:"avatar_url"`
}

// ListAccounts returns the user's groups normalized into the unified schema
func (c *GitLabClient) ListAccounts(ctx context.Context) ([]Account, error) {
	url := c.baseURL + "/api/v4/groups?min_access_level=10"
	body, err := doProviderGet(ctx, c.http, url, c.cred.AccessToken, nil)
	if err != nil {
		var authErr *authError
		if errors.As(err, &authErr) {
			c.invalidator.Invalidate(c.cred.UserID, credential.ProviderGitLab)
			c.log.Info("stale gitlab credential invalidated",
				logger.String("user_id", c.cred.UserID))
		}
		return nil, err
	}

	var groups []gitlabGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("%w: decode gitlab response: %v", ErrProviderUnavailable, err)
	}

	return normalizeGitLabGroups(groups), nil
}

// normalizeGitLabGroups reshapes GitLab group JSON into unified accounts
func normalizeGitLabGroups(groups []gitlabGroup) []Account {
	accounts := make([]Account, 0, len(groups))
	for _, group := range groups {
		accounts = append(accounts, Account{
			ID:        strconv.FormatInt(group.ID, 10),
			Provider:  string(credential.ProviderGitLab),
			Slug:      group.Path,
			Name:      group.Name,
			WebURL:    group.WebURL,
			AvatarURL: group.AvatarURL,
		})
	}
	return accounts
}
