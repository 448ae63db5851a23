package auth

import "fmt"

// ConfigurationError means required static configuration is missing. It is
// fatal for the whole auth subsystem and raised eagerly at first use rather
// than letting the provider reject the request later.
type ConfigurationError struct {
	// Field is the missing configuration key, e.g. "client_id".
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("auth configuration incomplete: %s is not set", e.Field)
}

// InvalidStateError means a callback's state parameter matched no live
// session: expired, forged, or already consumed. Never retried.
type InvalidStateError struct{}

func (e *InvalidStateError) Error() string {
	return "invalid state parameter: no matching session"
}

// TokenExchangeError means the provider rejected a code or refresh exchange.
// Authorization codes are single-use, so no automatic retry happens; the
// provider's error body is carried for the caller's diagnostics.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// NoRefreshTokenError means a refresh was attempted for a session that has
// no stored token or whose token lacks a refresh token. The caller must
// restart the authorization flow.
type NoRefreshTokenError struct {
	SessionID string
}

func (e *NoRefreshTokenError) Error() string {
	return fmt.Sprintf("no refresh token available for session %s", e.SessionID)
}

// StorageError wraps a backing-store I/O failure. It is distinct from "not
// found", which stores report as a nil result and never as an error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
