// Package server exposes the auth subsystem and the platform API client as
// MCP tools over stdio. Nothing in this package writes to stdout; the
// stdio transport owns it exclusively for JSON-RPC frames.
package server

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/internal/smaregi"
	"smaregi-mcp/pkg/logging"
)

// Server is the MCP server bridging AI assistants to the Smaregi platform.
// It consumes only the auth.Manager and smaregi.Client; protocol concerns
// stay here and domain concerns stay there.
type Server struct {
	manager   *auth.Manager
	api       *smaregi.Client
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers all tools.
func NewServer(name, version string, manager *auth.Manager, api *smaregi.Client) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		manager:   manager,
		api:       api,
		mcpServer: mcpServer,
	}
	s.registerTools()

	return s
}

// Start serves MCP over stdio. Blocks until the client closes the
// connection or the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logging.Info("Server", "MCP server starting on stdio")
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	authURLTool := mcp.NewTool("get_authorization_url",
		mcp.WithDescription("Start a Smaregi OAuth flow. Returns the URL the user must open in a browser and the session id to poll with check_auth_status."),
		mcp.WithArray("scopes",
			mcp.Description("Permission scopes to request, e.g. pos.products:read"),
			mcp.WithStringItems(),
		),
	)
	s.mcpServer.AddTool(authURLTool, s.handleGetAuthorizationURL)

	statusTool := mcp.NewTool("check_auth_status",
		mcp.WithDescription("Check whether a session has completed authentication"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session id returned by get_authorization_url"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleCheckAuthStatus)

	accessTokenTool := mcp.NewTool("get_access_token",
		mcp.WithDescription("Get a usable access token for an authenticated session, refreshing it if needed"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session id of an authenticated session"),
		),
	)
	s.mcpServer.AddTool(accessTokenTool, s.handleGetAccessToken)

	revokeTool := mcp.NewTool("revoke_token",
		mcp.WithDescription("Revoke a session's token and delete the session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session id to revoke"),
		),
	)
	s.mcpServer.AddTool(revokeTool, s.handleRevokeToken)

	executeTool := mcp.NewTool("execute_api_request",
		mcp.WithDescription("Execute a request against the Smaregi platform API using the session's access token"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session id of an authenticated session"),
		),
		mcp.WithString("endpoint",
			mcp.Required(),
			mcp.Description("API endpoint relative to the contract root, e.g. /pos/products"),
		),
		mcp.WithString("method",
			mcp.Description("HTTP method (default GET)"),
		),
		mcp.WithObject("query",
			mcp.Description("Query parameters as a JSON object with string values"),
		),
		mcp.WithObject("body",
			mcp.Description("Request body as a JSON object, for POST/PUT/PATCH"),
		),
	)
	s.mcpServer.AddTool(executeTool, s.handleExecuteAPIRequest)
}
