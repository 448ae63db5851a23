package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/pkg/logging"
	"smaregi-mcp/pkg/pkce"
)

// Key layout. The state lookup is a secondary index implemented as a second
// key holding the session id; it is written in the same transaction as the
// primary record so a state lookup never observes a half-written session.
const (
	sessionKeyPrefix      = "session:"
	sessionStateKeyPrefix = "session_state:"
	tokenKeyPrefix        = "token:"
)

// tokenTTLMargin keeps token records readable slightly past their expiry so
// a refresh still finds the stored refresh token.
const tokenTTLMargin = time.Minute

// RedisStore implements auth.SessionStore and auth.TokenStore on a Redis
// cluster or single node. Every key carries a TTL derived from its record's
// absolute expiry, so the backend expires entries natively and the
// CleanupExpired sweep is a no-op.
type RedisStore struct {
	client      redis.UniversalClient
	redirectURI string
}

// NewRedisStore wraps an existing client. The caller owns client
// construction so deployments can use sentinel or cluster addressing.
func NewRedisStore(client redis.UniversalClient, redirectURI string) *RedisStore {
	return &RedisStore{
		client:      client,
		redirectURI: redirectURI,
	}
}

// CreateSession generates PKCE material and persists a fresh session.
func (s *RedisStore) CreateSession(ctx context.Context, scopes []string) (*auth.Session, error) {
	verifier, err := pkce.GenerateVerifier()
	if err != nil {
		return nil, &auth.StorageError{Op: "create session", Err: err}
	}
	state, err := pkce.GenerateState()
	if err != nil {
		return nil, &auth.StorageError{Op: "create session", Err: err}
	}

	return s.CreateSessionWithParams(ctx, scopes, s.redirectURI, verifier, pkce.CreateCodeChallenge(verifier), state, nil)
}

// CreateSessionWithParams persists a session from caller-supplied PKCE
// material. The primary record and its state index key are written in one
// transaction with matching TTLs.
func (s *RedisStore) CreateSessionWithParams(ctx context.Context, scopes []string, redirectURI, verifier, codeChallenge, state string, metadata map[string]string) (*auth.Session, error) {
	now := time.Now()
	session := &auth.Session{
		ID:                  uuid.NewString(),
		State:               state,
		Verifier:            verifier,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: pkce.ChallengeMethodS256,
		Scopes:              scopes,
		RedirectURI:         redirectURI,
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(auth.SessionTTL),
		IsAuthenticated:     false,
		Metadata:            metadata,
	}

	if err := s.writeSession(ctx, session); err != nil {
		return nil, err
	}

	logging.Debug("Store", "Session created: %s", logging.TruncateSessionID(session.ID))
	return session, nil
}

func (s *RedisStore) writeSession(ctx context.Context, session *auth.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return &auth.StorageError{Op: "write session", Err: err}
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, data, ttl)
	pipe.Set(ctx, sessionStateKeyPrefix+session.State, session.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &auth.StorageError{Op: "write session", Err: err}
	}
	return nil
}

// GetSession returns the session with the given id, or nil when the key is
// absent or already expired.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*auth.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &auth.StorageError{Op: "get session", Err: err}
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &auth.StorageError{Op: "get session", Err: err}
	}
	return &session, nil
}

// GetSessionByState resolves the index key to an id, then loads the primary
// record. A dangling index (primary expired first) reads as not found.
func (s *RedisStore) GetSessionByState(ctx context.Context, state string) (*auth.Session, error) {
	id, err := s.client.Get(ctx, sessionStateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &auth.StorageError{Op: "get session by state", Err: err}
	}

	return s.GetSession(ctx, id)
}

// UpdateAuthenticationStatus rewrites the session with the flag flipped,
// keeping the remaining TTL. A missing session is logged and swallowed, as
// with the SQLite backend.
func (s *RedisStore) UpdateAuthenticationStatus(ctx context.Context, id string, authenticated bool) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		logging.Warn("Store", "Authentication status update for unknown session %s", logging.TruncateSessionID(id))
		return nil
	}

	session.IsAuthenticated = authenticated
	session.UpdatedAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return &auth.StorageError{Op: "update authentication status", Err: err}
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+id, data, redis.KeepTTL).Err(); err != nil {
		return &auth.StorageError{Op: "update authentication status", Err: err}
	}
	return nil
}

// DeleteSession removes the primary record and its state index key.
// Idempotent.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.Del(ctx, sessionStateKeyPrefix+session.State)
	if _, err := pipe.Exec(ctx); err != nil {
		return &auth.StorageError{Op: "delete session", Err: err}
	}
	return nil
}

// CleanupExpired is a no-op for this backend: every key was written with a
// TTL and Redis expires them natively. The method exists so the sweep can
// run unconditionally against either backend.
func (s *RedisStore) CleanupExpired(ctx context.Context, maxAgeHours ...int) (int, error) {
	logging.Debug("Store", "CleanupExpired is a no-op on the Redis backend (native key TTLs)")
	return 0, nil
}

// SaveToken normalizes the provider response and overwrites the session's
// token. The key TTL tracks the token's absolute expiry plus a small margin
// so a near-expiry refresh can still read the refresh token.
func (s *RedisStore) SaveToken(ctx context.Context, sessionID string, resp *auth.TokenResponse, contractID string) error {
	now := time.Now()
	expiresAt := resp.ExpiryTime(now)

	createdAt := now
	if existing, err := s.GetToken(ctx, sessionID); err == nil && existing != nil {
		createdAt = existing.CreatedAt
	}

	token := &auth.Token{
		ID:           sessionID,
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		IDToken:      resp.IDToken,
		ContractID:   contractID,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	data, err := json.Marshal(token)
	if err != nil {
		return &auth.StorageError{Op: "save token", Err: err}
	}

	ttl := time.Until(expiresAt) + tokenTTLMargin
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, tokenKeyPrefix+sessionID, data, ttl).Err(); err != nil {
		return &auth.StorageError{Op: "save token", Err: err}
	}

	logging.Debug("Store", "Token saved for session %s (expires %s)",
		logging.TruncateSessionID(sessionID), expiresAt.Format(time.RFC3339))
	return nil
}

// GetToken returns the session's token, or nil when absent.
func (s *RedisStore) GetToken(ctx context.Context, sessionID string) (*auth.Token, error) {
	data, err := s.client.Get(ctx, tokenKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}

	var token auth.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}
	return &token, nil
}

// DeleteToken removes the session's token. Idempotent.
func (s *RedisStore) DeleteToken(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, tokenKeyPrefix+sessionID).Err(); err != nil {
		return &auth.StorageError{Op: "delete token", Err: err}
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
