package credential

import "errors"

var (
	// ErrTokenNotFound is returned when the issuer has no token on record
	// for the requested user and provider
	ErrTokenNotFound = errors.New("no token on record")

	// ErrIssuerForbidden is returned when the issuer refuses to mint a token
	// because the stored grant does not cover the requested scopes
	ErrIssuerForbidden = errors.New("issuer denied token issuance")

	// ErrIssuerUnavailable is returned on network failures, timeouts and
	// unexpected issuer responses. Transient; callers may retry with backoff.
	ErrIssuerUnavailable = errors.New("token issuer unavailable")

	// ErrTransportLifecycle signals a release without a matching acquire.
	// It is logged and clamped, never propagated to request handlers.
	ErrTransportLifecycle = errors.New("transport release without matching acquire")
)
