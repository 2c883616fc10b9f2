package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stephnangue/porter/credential"
	"github.com/stephnangue/porter/logger"
	"github.com/stephnangue/porter/provider"
	"github.com/stephnangue/porter/respcache"
)

// AccountsResponse is the payload of the aggregated accounts listing.
type AccountsResponse struct {
	UserID   string             `json:"user_id"`
	Accounts []provider.Account `json:"accounts"`
	// Providers that were skipped because no credential exists for the user
	Skipped []string `json:"skipped_providers,omitempty"`
}

func handleAccounts(props *HandlerProperties, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "unsupported method")
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "missing 'user_id' parameter")
			return
		}

		cacheKey := respcache.Key("accounts", userID)
		if props.RespCache != nil {
			if body, ok := props.RespCache.Get(cacheKey); ok {
				respondRaw(w, body)
				return
			}
		}

		resp, err := aggregateAccounts(r.Context(), props, userID)
		if err != nil {
			log.Error("account aggregation failed",
				logger.String("user_id", userID),
				logger.Err(err),
			)
			respondError(w, http.StatusBadGateway, "one or more providers unavailable")
			return
		}

		body, err := json.Marshal(resp)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "encoding failure")
			return
		}
		if props.RespCache != nil {
			props.RespCache.Set(cacheKey, body)
		}
		respondRaw(w, body)
	})
}

// aggregateAccounts fans out to every configured provider concurrently.
// Providers without a stored credential are reported as skipped rather than
// failing the whole request.
func aggregateAccounts(ctx context.Context, props *HandlerProperties, userID string) (*AccountsResponse, error) {
	var (
		mu       sync.Mutex
		accounts []provider.Account
		skipped  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range credential.Providers() {
		g.Go(func() error {
			client, err := props.Factory.Client(gctx, userID, p, nil)
			if err != nil {
				if errors.Is(err, provider.ErrNoCredential) {
					mu.Lock()
					skipped = append(skipped, string(p))
					mu.Unlock()
					return nil
				}
				return err
			}

			list, err := client.ListAccounts(gctx)
			if err != nil {
				return err
			}

			mu.Lock()
			accounts = append(accounts, list...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortAccounts(accounts)
	sort.Strings(skipped)

	return &AccountsResponse{
		UserID:   userID,
		Accounts: accounts,
		Skipped:  skipped,
	}, nil
}

// sortAccounts orders results deterministically so responses are stable
// across requests and safe to cache.
func sortAccounts(accounts []provider.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Provider != accounts[j].Provider {
			return accounts[i].Provider < accounts[j].Provider
		}
		if accounts[i].Slug != accounts[j].Slug {
			return accounts[i].Slug < accounts[j].Slug
		}
		return accounts[i].ID < accounts[j].ID
	})
}

func handleProviderAccounts(props *HandlerProperties, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "unsupported method")
			return
		}

		// Path shape: /v1/providers/{provider}/accounts
		rest := strings.TrimPrefix(r.URL.Path, "/v1/providers/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[1] != "accounts" {
			respondError(w, http.StatusNotFound, "unknown path")
			return
		}

		p, err := credential.ParseProvider(parts[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "missing 'user_id' parameter")
			return
		}

		var scopes []string
		if raw := r.URL.Query().Get("scopes"); raw != "" {
			scopes = strings.Split(raw, ",")
		}

		client, err := props.Factory.Client(r.Context(), userID, p, scopes)
		if err != nil {
			if errors.Is(err, provider.ErrNoCredential) {
				respondError(w, http.StatusNotFound, err.Error())
				return
			}
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}

		accounts, err := client.ListAccounts(r.Context())
		if err != nil {
			log.Error("provider listing failed",
				logger.String("user_id", userID),
				logger.String("provider", string(p)),
				logger.Err(err),
			)
			respondError(w, http.StatusBadGateway, "provider unavailable")
			return
		}
		sortAccounts(accounts)

		respondOk(w, &AccountsResponse{
			UserID:   userID,
			Accounts: accounts,
		})
	})
}
