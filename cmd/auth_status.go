package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"smaregi-mcp/pkg/logging"
)

var authStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's authentication status",
	Long: `Show whether a session has completed authentication and, when a
token is stored, its expiry and refresh availability.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	stores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx := cmd.Context()
	sessionID := args[0]

	session, err := stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Printf("Session:   %s\n", sessionID)
		fmt.Printf("Status:    %s\n", text.FgHiBlack.Sprint("Not found"))
		return nil
	}

	fmt.Printf("Session:   %s\n", session.ID)
	if session.IsAuthenticated {
		fmt.Printf("Status:    %s\n", text.FgGreen.Sprint("Authenticated"))
	} else {
		fmt.Printf("Status:    %s\n", text.FgYellow.Sprint("Not authenticated"))
		fmt.Printf("           Run: smaregi-mcp auth login\n")
	}
	if len(session.Scopes) > 0 {
		fmt.Printf("Scopes:    %v\n", session.Scopes)
	}
	fmt.Printf("Expires:   %s\n", formatExpiry(session.ExpiresAt))

	token, err := stores.Tokens.GetToken(ctx, sessionID)
	if err != nil {
		return err
	}
	if token == nil {
		return nil
	}

	fmt.Println()
	fmt.Printf("Token expires: %s\n", formatExpiry(token.ExpiresAt))
	if token.RefreshToken != "" {
		fmt.Printf("Refresh:       %s\n", text.FgGreen.Sprint("Available"))
	} else {
		fmt.Printf("Refresh:       %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
	if token.ContractID != "" {
		fmt.Printf("Contract:      %s\n", token.ContractID)
	}
	return nil
}

// formatExpiry renders an expiry with its direction relative to now.
func formatExpiry(t time.Time) string {
	remaining := time.Until(t).Round(time.Second)
	if remaining < 0 {
		return fmt.Sprintf("%s (%s ago)", t.Format(time.RFC3339), text.FgRed.Sprint(-remaining))
	}
	return fmt.Sprintf("%s (in %s)", t.Format(time.RFC3339), remaining)
}
