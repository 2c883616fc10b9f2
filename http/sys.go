package http

import (
	"encoding/json"
	"net/http"

	"github.com/stephnangue/porter/credential"
)

// InvalidateRequest asks the broker to drop cached credentials for a user.
// Provider is optional; empty means all providers.
type InvalidateRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider,omitempty"`
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

func handleInvalidate(broker *credential.Broker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "unsupported method")
			return
		}

		var req InvalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.UserID == "" {
			respondError(w, http.StatusBadRequest, "missing 'user_id' field")
			return
		}

		var p credential.Provider
		if req.Provider != "" {
			parsed, err := credential.ParseProvider(req.Provider)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			p = parsed
		}

		removed := broker.Invalidate(req.UserID, p)
		respondOk(w, &InvalidateResponse{Invalidated: removed})
	})
}

func handleCacheStats(broker *credential.Broker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "unsupported method")
			return
		}
		respondOk(w, broker.CacheStats())
	})
}
