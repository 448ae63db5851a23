package smaregi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	ok    bool
}

func (s staticTokens) GetAccessToken(context.Context, string) (string, bool) {
	return s.token, s.ok
}

func TestExecute(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products": []}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "contract-123", staticTokens{token: "access-1", ok: true})

	query := url.Values{}
	query.Set("limit", "10")
	resp, err := c.Execute(context.Background(), "session-1", http.MethodGet, "/pos/products", query, nil)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"products": []}`, string(resp.Body))

	assert.Equal(t, "/contract-123/pos/products", gotPath)
	assert.Equal(t, "Bearer access-1", gotAuth)
	assert.Equal(t, "limit=10", gotQuery)
}

func TestExecuteWithBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "p-1"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "contract-123", staticTokens{token: "access-1", ok: true})

	resp, err := c.Execute(context.Background(), "session-1", http.MethodPost, "pos/products",
		nil, map[string]string{"productName": "Coffee"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Coffee", gotBody["productName"])
}

func TestExecuteNotAuthenticated(t *testing.T) {
	c := NewClient("https://api.smaregi.dev", "contract-123", staticTokens{ok: false})

	_, err := c.Execute(context.Background(), "session-1", http.MethodGet, "/pos/products", nil, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestExecutePlatformError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title": "Forbidden"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "contract-123", staticTokens{token: "access-1", ok: true})

	resp, err := c.Execute(context.Background(), "session-1", http.MethodGet, "/pos/products", nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Forbidden")
}
