package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SessionTTL is how long an authorization attempt stays usable. A session
// that has not completed the token exchange within this window expires and
// its state parameter stops resolving.
const SessionTTL = time.Hour

// DefaultRefreshThreshold is the lead time before token expiry at which
// GetAccessToken refreshes proactively instead of waiting for a 401.
const DefaultRefreshThreshold = 5 * time.Minute

// DefaultTokenLifetime is assumed when a provider response carries neither
// expires_in nor expires_at.
const DefaultTokenLifetime = time.Hour

// Session is the bookkeeping record for one authorization attempt,
// independent of whether the attempt ever completes.
type Session struct {
	// ID is the opaque primary key, generated at creation.
	ID string `json:"id"`

	// State is the random token round-tripped through the provider redirect.
	// Unique among live sessions; looked up exactly once, at callback time.
	State string `json:"state"`

	// Verifier is the PKCE code verifier. Write-once: set at creation, read
	// at token exchange, never logged.
	Verifier string `json:"verifier"`

	// CodeChallenge and CodeChallengeMethod are derived from Verifier and
	// sent in the authorization redirect.
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`

	// Scopes are the requested permission strings, order preserved.
	Scopes []string `json:"scopes"`

	// RedirectURI is the callback target registered for this attempt.
	RedirectURI string `json:"redirect_uri"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// IsAuthenticated flips to true after a successful token exchange and
	// never flips back except through revocation.
	IsAuthenticated bool `json:"is_authenticated"`

	// Metadata is an opaque payload for flow-specific extensions.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsExpired reports whether the session's authorization window has closed.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.After(time.Now())
}

// Token is one tenant's credential set, one-to-one with a session.
type Token struct {
	// ID equals the owning session's ID.
	ID string `json:"id"`

	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`

	// RefreshToken is optional; without it the credential cannot be
	// silently renewed.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is always an absolute timestamp, computed once at save time
	// from the provider response. It is never recomputed on read.
	ExpiresAt time.Time `json:"expires_at"`

	// IDToken is the optional OIDC identity payload.
	IDToken string `json:"id_token,omitempty"`

	// ContractID is the Smaregi contract (tenant) the token is scoped to.
	ContractID string `json:"contract_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the access token is already past its expiry.
func (t *Token) IsExpired() bool {
	return !t.ExpiresAt.After(time.Now())
}

// IsNearExpiry reports whether the token expires within the threshold.
// The boundary is inclusive: a token expiring in exactly threshold seconds
// is near expiry and triggers a proactive refresh.
func (t *Token) IsNearExpiry(threshold time.Duration) bool {
	return !t.ExpiresAt.After(time.Now().Add(threshold))
}

// TokenResponse is the loosely shaped JSON a provider token endpoint
// returns. Expiry may arrive as a relative expires_in or an absolute
// expires_at (RFC 3339 or epoch seconds); ExpiryTime is the single place
// that union is normalized.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in,omitempty"`
	ExpiresAt    WireTime `json:"expires_at,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Scope        string   `json:"scope,omitempty"`
	IDToken      string   `json:"id_token,omitempty"`
}

// ExpiryTime resolves the response's expiry to an absolute timestamp.
// Precedence: explicit expires_at, then now+expires_in, then the default
// lifetime. Callers never do this arithmetic themselves.
func (r *TokenResponse) ExpiryTime(now time.Time) time.Time {
	if r.ExpiresAt.IsSet() {
		return r.ExpiresAt.Time
	}
	if r.ExpiresIn > 0 {
		return now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return now.Add(DefaultTokenLifetime)
}

// WireTime unmarshals the two encodings providers use for absolute
// timestamps: a JSON number holding epoch seconds, or an RFC 3339 string.
type WireTime struct {
	Time time.Time
}

// IsSet reports whether a value was present on the wire.
func (w *WireTime) IsSet() bool {
	return !w.Time.IsZero()
}

func (w *WireTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || len(data) == 0 {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			// Some providers send epoch seconds as a string.
			epoch, perr := strconv.ParseInt(s, 10, 64)
			if perr != nil {
				return fmt.Errorf("unparseable expires_at %q: %w", s, err)
			}
			ts = time.Unix(epoch, 0)
		}
		w.Time = ts
		return nil
	}

	var epoch int64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return err
	}
	w.Time = time.Unix(epoch, 0)
	return nil
}

func (w WireTime) MarshalJSON() ([]byte, error) {
	if w.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(w.Time.Format(time.RFC3339))
}

// AuthStatus is the answer to "has this session completed the OAuth dance".
// It reads only the session flag. Token validity is deliberately not
// consulted here; GetAccessToken owns expiry enforcement.
type AuthStatus struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	SessionID       string `json:"sessionId"`
}

// SessionStore persists authorization attempts. Both backends implement the
// identical contract; "not found" is a nil Session, never an error.
type SessionStore interface {
	// CreateSession generates id, verifier, challenge and state, applies the
	// configured redirect URI and the session TTL, persists and returns the
	// full record.
	CreateSession(ctx context.Context, scopes []string) (*Session, error)

	// CreateSessionWithParams persists a session whose PKCE material the
	// caller already computed.
	CreateSessionWithParams(ctx context.Context, scopes []string, redirectURI, verifier, codeChallenge, state string, metadata map[string]string) (*Session, error)

	GetSession(ctx context.Context, id string) (*Session, error)

	// GetSessionByState resolves a session by its state parameter. Used
	// exactly once per flow, when the callback arrives.
	GetSessionByState(ctx context.Context, state string) (*Session, error)

	// UpdateAuthenticationStatus sets the flag and bumps updated_at. A
	// missing id is logged, not returned as an error.
	UpdateAuthenticationStatus(ctx context.Context, id string, authenticated bool) error

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error

	// CleanupExpired removes sessions past their expiry and returns how many
	// were removed. An optional maxAgeHours measures age from created_at
	// instead. Backends with native key TTLs implement this as a no-op.
	CleanupExpired(ctx context.Context, maxAgeHours ...int) (int, error)

	Close() error
}

// TokenStore persists provider credentials keyed by session ID.
type TokenStore interface {
	// SaveToken normalizes the provider response into an absolute expiry and
	// overwrites any existing record for the session.
	SaveToken(ctx context.Context, sessionID string, resp *TokenResponse, contractID string) error

	GetToken(ctx context.Context, sessionID string) (*Token, error)

	// DeleteToken is idempotent.
	DeleteToken(ctx context.Context, sessionID string) error

	Close() error
}
