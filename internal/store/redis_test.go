package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smaregi-mcp/internal/auth"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "http://127.0.0.1:3000/auth/callback")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisSessionRoundTrip(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, []string{"pos.products:read"})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Verifier, got.Verifier)
	assert.Equal(t, created.Scopes, got.Scopes)
	assert.WithinDuration(t, created.ExpiresAt, got.ExpiresAt, time.Second)

	// Both the primary record and the state index carry a TTL.
	assert.Greater(t, mr.TTL(sessionKeyPrefix+created.ID), time.Duration(0))
	assert.Greater(t, mr.TTL(sessionStateKeyPrefix+created.State), time.Duration(0))
}

func TestRedisGetSessionByState(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	got, err := s.GetSessionByState(ctx, created.State)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	missing, err := s.GetSessionByState(ctx, "no-such-state")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisSessionExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	mr.FastForward(auth.SessionTTL + time.Minute)

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetSessionByState(ctx, created.State)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisUpdateAuthenticationStatusKeepsTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	before := mr.TTL(sessionKeyPrefix + created.ID)

	require.NoError(t, s.UpdateAuthenticationStatus(ctx, created.ID, true))

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsAuthenticated)

	after := mr.TTL(sessionKeyPrefix + created.ID)
	assert.Greater(t, after, time.Duration(0))
	assert.LessOrEqual(t, after, before)

	// Unknown ids are logged, not errored.
	require.NoError(t, s.UpdateAuthenticationStatus(ctx, "no-such-id", true))
}

func TestRedisDeleteSessionIdempotent(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, created.ID))
	require.NoError(t, s.DeleteSession(ctx, created.ID))

	assert.False(t, mr.Exists(sessionKeyPrefix+created.ID))
	assert.False(t, mr.Exists(sessionStateKeyPrefix+created.State))
}

func TestRedisCleanupExpiredNoOp(t *testing.T) {
	s, _ := newTestRedisStore(t)

	n, err := s.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisTokenRoundTrip(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	resp := &auth.TokenResponse{
		AccessToken:  "access-1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: "refresh-1",
		Scope:        "pos.products:read",
	}
	require.NoError(t, s.SaveToken(ctx, session.ID, resp, "contract-123"))

	got, err := s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, "contract-123", got.ContractID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, time.Second)

	// The key outlives the token by the refresh margin.
	ttl := mr.TTL(tokenKeyPrefix + session.ID)
	assert.Greater(t, ttl, time.Hour)
	assert.LessOrEqual(t, ttl, time.Hour+tokenTTLMargin)
}

func TestRedisSaveTokenOverwrite(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	first := &auth.TokenResponse{AccessToken: "access-1", TokenType: "Bearer", ExpiresIn: 3600, RefreshToken: "refresh-1"}
	require.NoError(t, s.SaveToken(ctx, session.ID, first, "contract-123"))

	firstStored, err := s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, firstStored)

	second := &auth.TokenResponse{AccessToken: "access-2", TokenType: "Bearer", ExpiresIn: 7200, RefreshToken: "refresh-2"}
	require.NoError(t, s.SaveToken(ctx, session.ID, second, "contract-123"))

	got, err := s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken)
	assert.Equal(t, firstStored.CreatedAt, got.CreatedAt)
}

func TestRedisTokenExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveToken(ctx, session.ID, &auth.TokenResponse{AccessToken: "a", TokenType: "Bearer", ExpiresIn: 60}, "c"))

	// Inside the margin the record is still readable for a refresh.
	mr.FastForward(90 * time.Second)
	got, err := s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	mr.FastForward(time.Minute)
	got, err = s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisDeleteTokenIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveToken(ctx, session.ID, &auth.TokenResponse{AccessToken: "a", TokenType: "Bearer"}, "c"))

	require.NoError(t, s.DeleteToken(ctx, session.ID))
	require.NoError(t, s.DeleteToken(ctx, session.ID))

	got, err := s.GetToken(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
