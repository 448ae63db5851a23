package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"smaregi-mcp/internal/auth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// configPath is the --config persistent flag value. Empty means the default
// location under the user's home directory.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "smaregi-mcp",
	Short: "MCP server bridging AI assistants to the Smaregi POS platform",
	Long: `smaregi-mcp exposes the Smaregi POS platform API to AI assistants
over the Model Context Protocol. It manages the OAuth authentication
lifecycle (PKCE flows, token storage, proactive refresh) so assistants
can call the platform API without handling credentials themselves.`,
	// SilenceUsage keeps handled errors from dumping the usage text.
	SilenceUsage: true,
}

// SetVersion injects the build version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the injected build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "smaregi-mcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types onto semantic exit codes for scripting.
func getExitCode(err error) int {
	var exchErr *auth.TokenExchangeError
	if errors.As(err, &exchErr) {
		return ExitCodeAuthFailed
	}
	var stateErr *auth.InvalidStateError
	if errors.As(err, &stateErr) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ~/.smaregi-mcp/config.yaml)")
	rootCmd.AddCommand(newVersionCmd())
}
