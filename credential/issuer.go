package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/stephnangue/porter/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultIssueTimeout bounds one issuer round-trip
	DefaultIssueTimeout = 10 * time.Second

	// issuerMaxResponseBodySize limits response body reads to prevent OOM
	issuerMaxResponseBodySize = 1 << 20 // 1MB

	issuePath = "/v1/tokens/issue"
)

// IssuerConfig configures the token issuer client
type IssuerConfig struct {
	// Address is the base URL of the token-issuing backend,
	// e.g. "http://grantd.internal:8200"
	Address string

	// Timeout bounds each issuance round-trip. Defaults to DefaultIssueTimeout.
	Timeout time.Duration

	// RateLimit caps outbound issuance calls per second. 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// TokenIssuerClient performs the network call to the external token-issuing
// backend. Stateless except for the shared transport handle, which it
// acquires for the duration of each call.
type TokenIssuerClient struct {
	address   string
	timeout   time.Duration
	transport *SharedTransportManager
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewTokenIssuerClient creates an issuer client using the shared transport
func NewTokenIssuerClient(cfg IssuerConfig, transport *SharedTransportManager, log logger.Logger) *TokenIssuerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultIssueTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &TokenIssuerClient{
		address:   cfg.Address,
		timeout:   timeout,
		transport: transport,
		limiter:   limiter,
		log:       log,
	}
}

// issueRequest is the wire request to the issuer
type issueRequest struct {
	UserID         string   `json:"user_id"`
	Provider       string   `json:"provider"`
	RequiredScopes []string `json:"required_scopes"`
}

// issueResponse is the wire response from the issuer. A 200 with
// Success=false is a soft failure, treated the same as "no token on record".
type issueResponse struct {
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       []string   `json:"scopes"`
	Provider     string     `json:"provider"`
	UserID       string     `json:"user_id"`
}

// Fetch performs one round-trip to the issuer and translates the outcome
// into the package error taxonomy: ErrTokenNotFound, ErrIssuerForbidden or
// ErrIssuerUnavailable. No raw transport error crosses this boundary, and
// the client never retries; retries belong to a higher-level policy.
func (c *TokenIssuerClient) Fetch(ctx context.Context, userID string, provider Provider, scopes []string) (*Credential, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrIssuerUnavailable, err)
		}
	}

	client, err := c.transport.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: transport: %v", ErrIssuerUnavailable, err)
	}
	defer c.transport.Release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(issueRequest{
		UserID:         userID,
		Provider:       string(provider),
		RequiredScopes: scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrIssuerUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address+issuePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrIssuerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	reqID := RequestID(ctx)
	req.Header.Set("X-Request-ID", reqID)

	resp, err := client.Do(req)
	if err != nil {
		c.log.Warn("issuer request failed",
			logger.String("user_id", userID),
			logger.String("provider", string(provider)),
			logger.String("request_id", reqID),
			logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrIssuerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, issuerMaxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrIssuerUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to body classification below
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: user '%s' provider '%s'", ErrTokenNotFound, userID, provider)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: user '%s' provider '%s'", ErrIssuerForbidden, userID, provider)
	default:
		return nil, fmt.Errorf("%w: issuer returned status %d", ErrIssuerUnavailable, resp.StatusCode)
	}

	var ir issueResponse
	if err := json.Unmarshal(respBody, &ir); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrIssuerUnavailable, err)
	}

	if !ir.Success {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, ir.Error)
	}
	if ir.AccessToken == "" {
		return nil, fmt.Errorf("%w: issuer response missing access_token", ErrIssuerUnavailable)
	}

	cred := &Credential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  ir.AccessToken,
		RefreshToken: ir.RefreshToken,
		Scopes:       append([]string(nil), ir.Scopes...),
	}
	if ir.ExpiresAt != nil {
		cred.ExpiresAt = *ir.ExpiresAt
	}

	c.log.Debug("token issued",
		logger.String("user_id", userID),
		logger.String("provider", string(provider)),
		logger.String("request_id", reqID),
		logger.Bool("has_expiry", !cred.ExpiresAt.IsZero()))

	return cred, nil
}

// RequestID returns the request correlation id from the active trace context,
// minting a new one when the caller has none.
func RequestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}
