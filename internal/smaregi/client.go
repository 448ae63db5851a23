// Package smaregi is a thin client for the Smaregi platform API. It attaches
// the session's access token and scopes every request to the configured
// contract; endpoint knowledge stays with the caller.
package smaregi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smaregi-mcp/pkg/logging"
)

// requestTimeout bounds every platform API call.
const requestTimeout = 30 * time.Second

// ErrNotAuthenticated means the session has no usable access token. The
// caller should restart the authorization flow.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// TokenSource supplies access tokens per session. Satisfied by
// auth.Manager; refresh happens behind this interface.
type TokenSource interface {
	GetAccessToken(ctx context.Context, sessionID string) (string, bool)
}

// APIResponse is the raw outcome of a platform API call. The body is kept
// as raw JSON so tool callers can forward it without re-encoding.
type APIResponse struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// IsSuccess reports whether the platform accepted the request.
func (r *APIResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls the Smaregi platform API on behalf of authenticated sessions.
type Client struct {
	baseURL    string
	contractID string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a client for the given platform base URL and contract.
func NewClient(baseURL, contractID string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		contractID: contractID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Execute performs one platform API request. The endpoint is relative to
// the contract root, e.g. "/pos/products". A JSON-encodable body is sent
// for methods that carry one; nil means no body.
func (c *Client) Execute(ctx context.Context, sessionID, method, endpoint string, query url.Values, body any) (*APIResponse, error) {
	token, ok := c.tokens.GetAccessToken(ctx, sessionID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	requestURL := c.baseURL + "/" + c.contractID + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building platform request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.Debug("Smaregi", "%s %s", method, c.contractID+endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling platform API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading platform response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}
