package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"smaregi-mcp/internal/smaregi"
)

func (s *Server) handleGetAuthorizationURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopes := request.GetStringSlice("scopes", nil)

	authURL, sessionID, err := s.manager.GetAuthorizationURL(ctx, scopes)
	if err != nil {
		return errorResult(err), nil
	}

	return jsonResult(map[string]string{
		"url":       authURL,
		"sessionId": sessionID,
	})
}

func (s *Server) handleCheckAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError("sessionId argument is required"), nil
	}

	status, err := s.manager.CheckAuthStatus(ctx, sessionID)
	if err != nil {
		return errorResult(err), nil
	}

	return jsonResult(status)
}

func (s *Server) handleGetAccessToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError("sessionId argument is required"), nil
	}

	token, ok := s.manager.GetAccessToken(ctx, sessionID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("No valid token for session %s; run get_authorization_url to authenticate", sessionID)), nil
	}

	return jsonResult(map[string]string{
		"accessToken": token,
	})
}

func (s *Server) handleRevokeToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError("sessionId argument is required"), nil
	}

	revoked, err := s.manager.RevokeToken(ctx, sessionID)
	if err != nil {
		return errorResult(err), nil
	}

	return jsonResult(map[string]bool{
		"revoked": revoked,
	})
}

func (s *Server) handleExecuteAPIRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError("sessionId argument is required"), nil
	}
	endpoint, err := request.RequireString("endpoint")
	if err != nil {
		return mcp.NewToolResultError("endpoint argument is required"), nil
	}

	method := strings.ToUpper(request.GetString("method", http.MethodGet))

	args := request.GetArguments()
	var query url.Values
	if raw, ok := args["query"].(map[string]any); ok {
		query = url.Values{}
		for key, value := range raw {
			query.Set(key, fmt.Sprint(value))
		}
	}
	body := args["body"]

	resp, err := s.api.Execute(ctx, sessionID, method, endpoint, query, body)
	if err != nil {
		if errors.Is(err, smaregi.ErrNotAuthenticated) {
			return mcp.NewToolResultError(fmt.Sprintf("No valid token for session %s; run get_authorization_url to authenticate", sessionID)), nil
		}
		return errorResult(err), nil
	}

	return jsonResult(resp)
}

// jsonResult marshals the payload as indented JSON text content.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
