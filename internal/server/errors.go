package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"smaregi-mcp/internal/auth"
)

// errorPayload is the structured shape tool errors take on the wire. AI
// assistants branch on the type string, so it stays stable.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// errorResult maps the auth error taxonomy onto a structured tool error.
// Unknown errors pass through with their message only; raw stacks and
// wrapped chains never reach the client.
func errorResult(err error) *mcp.CallToolResult {
	payload := errorPayload{
		Type:    "internal_error",
		Message: err.Error(),
	}

	var confErr *auth.ConfigurationError
	var stateErr *auth.InvalidStateError
	var exchErr *auth.TokenExchangeError
	var noRefresh *auth.NoRefreshTokenError
	var storageErr *auth.StorageError

	switch {
	case errors.As(err, &confErr):
		payload.Type = "configuration_error"
	case errors.As(err, &stateErr):
		payload.Type = "invalid_state"
	case errors.As(err, &exchErr):
		payload.Type = "token_exchange_failed"
		payload.Status = exchErr.StatusCode
	case errors.As(err, &noRefresh):
		payload.Type = "no_refresh_token"
	case errors.As(err, &storageErr):
		payload.Type = "storage_error"
	}

	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", payload.Type, payload.Message))
	}
	return mcp.NewToolResultError(string(data))
}
