package http

import (
	"net/http"
	"strings"

	"github.com/stephnangue/porter/credential"
	"github.com/stephnangue/porter/logger"
	"github.com/stephnangue/porter/provider"
	"github.com/stephnangue/porter/respcache"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Broker    *credential.Broker
	Factory   *provider.ClientFactory
	RespCache *respcache.Cache
	Logger    logger.Logger
}

// Handler creates and returns the main HTTP handler for Porter.
func Handler(props *HandlerProperties) http.Handler {
	mux := http.NewServeMux()
	log := props.Logger

	// Aggregated accounts across all providers
	mux.Handle("/v1/accounts", handleAccounts(props, log))

	// Per-provider accounts - /v1/providers/{provider}/accounts
	mux.Handle("/v1/providers/", handleProviderAccounts(props, log))

	// System endpoints: credential invalidation and diagnostics
	mux.Handle("/v1/sys/credentials/invalidate", handleInvalidate(props.Broker))
	mux.Handle("/v1/sys/cache/stats", handleCacheStats(props.Broker))
	mux.Handle("/v1/sys/health", handleHealth())

	return wrapGenericHandler(mux)
}

// wrapGenericHandler rejects anything outside the /v1/ namespace. Request id
// injection, panic recovery and logging are layered on by the listener.
func wrapGenericHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			respondError(w, http.StatusNotFound, "path must begin with /v1/")
			return
		}

		handler.ServeHTTP(w, r)
	})
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondOk(w, map[string]string{"status": "ok"})
	})
}
