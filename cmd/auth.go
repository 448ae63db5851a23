package cmd

import (
	"github.com/spf13/cobra"
)

// authCmd groups the authentication subcommands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Smaregi authentication",
	Long: `Manage OAuth authentication against the Smaregi identity provider.

Subcommands:
  login    Run the browser-based authorization flow
  status   Show a session's authentication status
  revoke   Revoke a session's token`,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRevokeCmd)
}
