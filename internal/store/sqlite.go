package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/pkg/logging"
	"smaregi-mcp/pkg/pkce"
)

// timeFormat is the serialized timestamp format. RFC 3339 with a
// fixed-width nanosecond fraction round-trips exactly and sorts
// lexicographically, which the expiry sweep relies on. RFC3339Nano would
// not: it trims trailing fractional zeros, so a zero-nanosecond timestamp
// compares greater than any fractional one in the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements auth.SessionStore and auth.TokenStore on a
// single-file embedded database. Expired sessions are removed by the
// periodic sweep; there is no native TTL.
type SQLiteStore struct {
	db          *sql.DB
	redirectURI string
}

// NewSQLiteStore opens (creating if needed) the database at path. Parent
// directories are created, the schema is applied, and WAL mode is enabled
// for concurrent readers. redirectURI is the callback target stamped onto
// sessions created by CreateSession.
func NewSQLiteStore(path, redirectURI string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		redirectURI: redirectURI,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logging.Info("Store", "SQLite store initialized at %s", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                    TEXT PRIMARY KEY,
			state                 TEXT NOT NULL,
			verifier              TEXT NOT NULL,
			code_challenge        TEXT NOT NULL,
			code_challenge_method TEXT NOT NULL,
			scopes                TEXT NOT NULL,
			redirect_uri          TEXT NOT NULL,
			created_at            TEXT NOT NULL,
			updated_at            TEXT NOT NULL,
			expires_at            TEXT NOT NULL,
			is_authenticated      INTEGER NOT NULL DEFAULT 0,
			metadata              TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_state
			ON sessions(state);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at
			ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS tokens (
			id            TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			token_type    TEXT NOT NULL,
			scope         TEXT NOT NULL,
			refresh_token TEXT,
			expires_at    TEXT NOT NULL,
			id_token      TEXT,
			contract_id   TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// CreateSession generates all PKCE material and persists a fresh session
// with the configured redirect URI and the standard TTL.
func (s *SQLiteStore) CreateSession(ctx context.Context, scopes []string) (*auth.Session, error) {
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
// material.
func (s *SQLiteStore) CreateSessionWithParams(ctx context.Context, scopes []string, redirectURI, verifier, codeChallenge, state string, metadata map[string]string) (*auth.Session, error) {
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

	scopesJSON, err := json.Marshal(session.Scopes)
	if err != nil {
		return nil, &auth.StorageError{Op: "create session", Err: err}
	}
	var metadataJSON []byte
	if len(session.Metadata) > 0 {
		metadataJSON, err = json.Marshal(session.Metadata)
		if err != nil {
			return nil, &auth.StorageError{Op: "create session", Err: err}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, state, verifier, code_challenge, code_challenge_method, scopes,
		 redirect_uri, created_at, updated_at, expires_at, is_authenticated, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.State,
		session.Verifier,
		session.CodeChallenge,
		session.CodeChallengeMethod,
		string(scopesJSON),
		session.RedirectURI,
		session.CreatedAt.Format(timeFormat),
		session.UpdatedAt.Format(timeFormat),
		session.ExpiresAt.Format(timeFormat),
		boolToInt(session.IsAuthenticated),
		nullableString(metadataJSON),
	)
	if err != nil {
		return nil, &auth.StorageError{Op: "create session", Err: err}
	}

	logging.Debug("Store", "Session created: %s", logging.TruncateSessionID(session.ID))
	return session, nil
}

const sessionColumns = `id, state, verifier, code_challenge, code_challenge_method, scopes,
	redirect_uri, created_at, updated_at, expires_at, is_authenticated, metadata`

// GetSession returns the session with the given id, or nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row, "get session")
}

// GetSessionByState resolves a session via its state parameter.
func (s *SQLiteStore) GetSessionByState(ctx context.Context, state string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE state = ?`, state)
	return scanSession(row, "get session by state")
}

func scanSession(row *sql.Row, op string) (*auth.Session, error) {
	var (
		session       auth.Session
		scopesJSON    string
		createdAt     string
		updatedAt     string
		expiresAt     string
		authenticated int
		metadataJSON  sql.NullString
	)

	err := row.Scan(
		&session.ID,
		&session.State,
		&session.Verifier,
		&session.CodeChallenge,
		&session.CodeChallengeMethod,
		&scopesJSON,
		&session.RedirectURI,
		&createdAt,
		&updatedAt,
		&expiresAt,
		&authenticated,
		&metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &auth.StorageError{Op: op, Err: err}
	}

	if err := json.Unmarshal([]byte(scopesJSON), &session.Scopes); err != nil {
		return nil, &auth.StorageError{Op: op, Err: fmt.Errorf("corrupt scopes column: %w", err)}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &session.Metadata); err != nil {
			return nil, &auth.StorageError{Op: op, Err: fmt.Errorf("corrupt metadata column: %w", err)}
		}
	}
	if session.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, &auth.StorageError{Op: op, Err: err}
	}
	if session.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, &auth.StorageError{Op: op, Err: err}
	}
	if session.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, &auth.StorageError{Op: op, Err: err}
	}
	session.IsAuthenticated = authenticated == 1

	return &session, nil
}

// UpdateAuthenticationStatus flips the authenticated flag and bumps
// updated_at. An unknown id is logged and swallowed: the flow has already
// failed in a way the caller can observe elsewhere, and erroring here would
// mask the original cause.
func (s *SQLiteStore) UpdateAuthenticationStatus(ctx context.Context, id string, authenticated bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_authenticated = ?, updated_at = ? WHERE id = ?`,
		boolToInt(authenticated),
		time.Now().Format(timeFormat),
		id,
	)
	if err != nil {
		return &auth.StorageError{Op: "update authentication status", Err: err}
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logging.Warn("Store", "Authentication status update for unknown session %s", logging.TruncateSessionID(id))
	}
	return nil
}

// DeleteSession removes the session. Deleting a missing session is a no-op.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return &auth.StorageError{Op: "delete session", Err: err}
	}
	return nil
}

// CleanupExpired deletes sessions whose expires_at has passed, or whose
// created_at is older than maxAgeHours when given. Returns the number of
// rows removed. This sweep is the only expiry mechanism for this backend.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, maxAgeHours ...int) (int, error) {
	var (
		res sql.Result
		err error
	)
	now := time.Now()

	if len(maxAgeHours) > 0 {
		cutoff := now.Add(-time.Duration(maxAgeHours[0]) * time.Hour)
		res, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.Format(timeFormat))
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Format(timeFormat))
	}
	if err != nil {
		return 0, &auth.StorageError{Op: "cleanup expired sessions", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, &auth.StorageError{Op: "cleanup expired sessions", Err: err}
	}
	if n > 0 {
		logging.Info("Store", "Cleaned up %d expired sessions", n)
	}
	return int(n), nil
}

// SaveToken normalizes the provider response and overwrites any existing
// token for the session. created_at is preserved across overwrites.
func (s *SQLiteStore) SaveToken(ctx context.Context, sessionID string, resp *auth.TokenResponse, contractID string) error {
	now := time.Now()
	expiresAt := resp.ExpiryTime(now)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens
		(id, access_token, token_type, scope, refresh_token, expires_at,
		 id_token, contract_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token  = excluded.access_token,
			token_type    = excluded.token_type,
			scope         = excluded.scope,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			id_token      = excluded.id_token,
			contract_id   = excluded.contract_id,
			updated_at    = excluded.updated_at`,
		sessionID,
		resp.AccessToken,
		resp.TokenType,
		resp.Scope,
		nullIfEmpty(resp.RefreshToken),
		expiresAt.Format(timeFormat),
		nullIfEmpty(resp.IDToken),
		contractID,
		now.Format(timeFormat),
		now.Format(timeFormat),
	)
	if err != nil {
		return &auth.StorageError{Op: "save token", Err: err}
	}

	logging.Debug("Store", "Token saved for session %s (expires %s)",
		logging.TruncateSessionID(sessionID), expiresAt.Format(time.RFC3339))
	return nil
}

// GetToken returns the token owned by the session, or nil when absent.
func (s *SQLiteStore) GetToken(ctx context.Context, sessionID string) (*auth.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, access_token, token_type, scope, refresh_token, expires_at,
		       id_token, contract_id, created_at, updated_at
		FROM tokens WHERE id = ?`, sessionID)

	var (
		token        auth.Token
		refreshToken sql.NullString
		idToken      sql.NullString
		expiresAt    string
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&token.ID,
		&token.AccessToken,
		&token.TokenType,
		&token.Scope,
		&refreshToken,
		&expiresAt,
		&idToken,
		&token.ContractID,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}

	token.RefreshToken = refreshToken.String
	token.IDToken = idToken.String
	if token.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}
	if token.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}
	if token.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, &auth.StorageError{Op: "get token", Err: err}
	}

	return &token, nil
}

// DeleteToken removes the session's token. Idempotent.
func (s *SQLiteStore) DeleteToken(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, sessionID); err != nil {
		return &auth.StorageError{Op: "delete token", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
