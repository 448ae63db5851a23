package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/internal/server"
	"smaregi-mcp/internal/smaregi"
	"smaregi-mcp/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Starts the MCP server for AI assistant integration.

The server speaks JSON-RPC over stdin/stdout, so stdout is reserved
exclusively for protocol frames; all logs go to stderr. A local HTTP
listener receives OAuth redirects so authorization flows started via
the get_authorization_url tool can complete. Point your AI assistant's
MCP configuration at this command.

Exposed tools: get_authorization_url, check_auth_status,
get_access_token, revoke_token, execute_api_request.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout carries JSON-RPC frames only; everything else goes to stderr.
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)
	cfg.LogSummary()

	stores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	manager := buildManager(cfg, stores)
	api := smaregi.NewClient(cfg.APIBaseURL, cfg.ContractID, manager)
	srv := server.NewServer(cfg.ServerName, cfg.ServerVersion, manager, api)

	ctx := cmd.Context()
	manager.StartCleanup(ctx)
	defer manager.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		return serveCallbacks(ctx, cfg.CallbackPort, callbackPathFromURI(cfg.RedirectURI), manager)
	})

	return g.Wait()
}

// callbackPathFromURI extracts the path component of the registered
// redirect URI, falling back to the default callback path.
func callbackPathFromURI(redirectURI string) string {
	if u, err := url.Parse(redirectURI); err == nil && u.Path != "" {
		return u.Path
	}
	return "/auth/callback"
}

// serveCallbacks runs a long-lived local HTTP listener that completes
// authorization flows: each provider redirect is exchanged for tokens via
// the manager. Unlike the single-shot login flow, this listener serves any
// number of flows for the lifetime of the process.
func serveCallbacks(ctx context.Context, port int, path string, manager *auth.Manager) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		query := r.URL.Query()
		if errCode := query.Get("error"); errCode != "" {
			logging.Warn("Server", "Authorization redirect carried error: %s", errCode)
			fmt.Fprintf(w, "Authentication failed: %s\n%s\n", errCode, query.Get("error_description"))
			return
		}

		sessionID, err := manager.HandleCallback(r.Context(), query.Get("code"), query.Get("state"))
		if err != nil {
			logging.Error("Server", err, "Callback handling failed")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Authentication failed. Check the server logs and retry the flow.")
			return
		}

		logging.Info("Server", "Authorization completed for session %s", logging.TruncateSessionID(sessionID))
		fmt.Fprintln(w, "Authentication complete. You can close this window and return to your assistant.")
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("starting callback listener on %s: %w", httpServer.Addr, err)
	}
	logging.Info("Server", "Callback listener on http://%s%s", httpServer.Addr, path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
