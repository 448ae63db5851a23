package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smaregi-mcp/pkg/logging"
)

var authRevokeCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Revoke a session's token",
	Long:  `Delete a session's stored token and the session itself.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthRevoke,
}

func runAuthRevoke(cmd *cobra.Command, args []string) error {
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
	manager := buildManager(cfg, stores)

	revoked, err := manager.RevokeToken(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if revoked {
		fmt.Println("Token revoked.")
	} else {
		fmt.Println("No token found for that session.")
	}
	return nil
}
