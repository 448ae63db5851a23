package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"smaregi-mcp/pkg/logging"
	"smaregi-mcp/pkg/pkce"
)

// providerTimeout bounds every HTTP call to the OAuth provider.
const providerTimeout = 30 * time.Second

// cleanupInterval is how often the background sweep runs.
const cleanupInterval = time.Hour

// ManagerConfig carries the static provider configuration.
type ManagerConfig struct {
	// ClientID identifies the application at the provider. Required for
	// every flow; checked eagerly.
	ClientID string

	// ClientSecret is sent on token exchanges when set. Public clients
	// leave it empty and rely on PKCE alone.
	ClientSecret string

	// ContractID is the Smaregi contract (tenant) stamped onto saved tokens.
	ContractID string

	// AuthorizationURL is the provider's authorize endpoint.
	AuthorizationURL string

	// TokenURL is the provider's token endpoint.
	TokenURL string

	// RedirectURI is the registered callback target.
	RedirectURI string

	// RefreshThreshold is the lead time before expiry at which
	// GetAccessToken refreshes proactively. Zero means the default.
	RefreshThreshold time.Duration
}

// Manager orchestrates the OAuth authorization-code flow with PKCE:
// session creation, callback handling, token exchange, proactive refresh
// and revocation. Stores are injected; the Manager owns no persistence of
// its own.
type Manager struct {
	cfg      ManagerConfig
	sessions SessionStore
	tokens   TokenStore
	client   *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager over the given stores.
func NewManager(cfg ManagerConfig, sessions SessionStore, tokens TokenStore) *Manager {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	return &Manager{
		cfg:      cfg,
		sessions: sessions,
		tokens:   tokens,
		client:   &http.Client{Timeout: providerTimeout},
	}
}

// GetAuthorizationURL creates a fresh session and builds the provider
// authorization URL for it. Returns the URL and the session id the caller
// must hold on to for subsequent status checks.
func (m *Manager) GetAuthorizationURL(ctx context.Context, scopes []string) (string, string, error) {
	if m.cfg.ClientID == "" {
		return "", "", &ConfigurationError{Field: "client_id"}
	}

	session, err := m.sessions.CreateSession(ctx, scopes)
	if err != nil {
		return "", "", err
	}

	params := url.Values{}
	params.Set("client_id", m.cfg.ClientID)
	params.Set("redirect_uri", session.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", session.State)
	params.Set("code_challenge", session.CodeChallenge)
	params.Set("code_challenge_method", pkce.ChallengeMethodS256)
	if len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}

	authURL := m.cfg.AuthorizationURL + "?" + params.Encode()

	logging.Info("Auth", "Authorization URL issued for session %s", logging.TruncateSessionID(session.ID))
	return authURL, session.ID, nil
}

// HandleCallback consumes the provider redirect: it resolves the session by
// state, exchanges the authorization code for tokens and marks the session
// authenticated. The state check happens before any network call, so a
// forged or expired state never reaches the provider.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (string, error) {
	session, err := m.sessions.GetSessionByState(ctx, state)
	if err != nil {
		return "", err
	}
	if session == nil || session.IsExpired() {
		return "", &InvalidStateError{}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", session.RedirectURI)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("code_verifier", session.Verifier)
	if m.cfg.ClientSecret != "" {
		form.Set("client_secret", m.cfg.ClientSecret)
	}

	resp, err := m.exchange(ctx, form)
	if err != nil {
		return "", err
	}

	// Token first, then the flag. A failed save must leave the session
	// unauthenticated so status checks stay truthful.
	if err := m.tokens.SaveToken(ctx, session.ID, resp, m.cfg.ContractID); err != nil {
		return "", err
	}
	if err := m.sessions.UpdateAuthenticationStatus(ctx, session.ID, true); err != nil {
		return "", err
	}

	logging.Info("Auth", "Session %s authenticated", logging.TruncateSessionID(session.ID))
	return session.ID, nil
}

// RefreshToken exchanges the session's refresh token for a new credential
// set and persists it. When the provider response omits a refresh token the
// old one is kept, since providers that do not rotate simply leave it out.
func (m *Manager) RefreshToken(ctx context.Context, sessionID string) (*Token, error) {
	token, err := m.tokens.GetToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if token == nil || token.RefreshToken == "" {
		return nil, &NoRefreshTokenError{SessionID: sessionID}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", m.cfg.ClientID)
	if m.cfg.ClientSecret != "" {
		form.Set("client_secret", m.cfg.ClientSecret)
	}

	resp, err := m.exchange(ctx, form)
	if err != nil {
		return nil, err
	}

	if resp.RefreshToken == "" {
		resp.RefreshToken = token.RefreshToken
	}

	if err := m.tokens.SaveToken(ctx, sessionID, resp, m.cfg.ContractID); err != nil {
		return nil, err
	}

	logging.Debug("Auth", "Token refreshed for session %s", logging.TruncateSessionID(sessionID))
	return m.tokens.GetToken(ctx, sessionID)
}

// GetAccessToken returns a usable access token for the session. A token
// inside the refresh threshold is refreshed silently first. The boolean is
// false when no usable token exists; callers treat that as "start a new
// authorization flow", so refresh failures are not surfaced as errors.
func (m *Manager) GetAccessToken(ctx context.Context, sessionID string) (string, bool) {
	token, err := m.tokens.GetToken(ctx, sessionID)
	if err != nil || token == nil {
		return "", false
	}

	if token.IsNearExpiry(m.cfg.RefreshThreshold) {
		refreshed, err := m.RefreshToken(ctx, sessionID)
		if err != nil {
			logging.Warn("Auth", "Silent refresh failed for session %s: %v", logging.TruncateSessionID(sessionID), err)
			return "", false
		}
		token = refreshed
	}

	return token.AccessToken, true
}

// CheckAuthStatus reports whether the session completed the flow. Only the
// session flag is consulted; token expiry is GetAccessToken's concern.
func (m *Manager) CheckAuthStatus(ctx context.Context, sessionID string) (*AuthStatus, error) {
	session, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	status := &AuthStatus{SessionID: sessionID}
	if session != nil {
		status.IsAuthenticated = session.IsAuthenticated
	}
	return status, nil
}

// RevokeToken deletes the session's token and the session itself. Returns
// whether a token actually existed; missing records are not errors.
func (m *Manager) RevokeToken(ctx context.Context, sessionID string) (bool, error) {
	token, err := m.tokens.GetToken(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if err := m.tokens.DeleteToken(ctx, sessionID); err != nil {
		return false, err
	}
	if err := m.sessions.DeleteSession(ctx, sessionID); err != nil {
		return false, err
	}

	if token == nil {
		return false, nil
	}
	logging.Info("Auth", "Token revoked for session %s", logging.TruncateSessionID(sessionID))
	return true, nil
}

// exchange posts the form to the token endpoint and decodes the response.
func (m *Manager) exchange(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling token endpoint: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &TokenExchangeError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	return &resp, nil
}

// StartCleanup launches the hourly expired-session sweep. It runs until the
// context is cancelled or Stop is called. Safe to call on either backend;
// the Redis adapter's sweep is a no-op.
func (m *Manager) StartCleanup(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.sessions.CleanupExpired(ctx); err != nil {
					logging.Error("Auth", err, "Session cleanup sweep failed")
				}
			}
		}
	}()

	logging.Debug("Auth", "Session cleanup sweep started (interval %s)", cleanupInterval)
}

// Stop cancels the cleanup sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
