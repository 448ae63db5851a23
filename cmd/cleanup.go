package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smaregi-mcp/pkg/logging"
)

var cleanupMaxAgeHours int

// cleanupCmd runs one expired-session sweep and exits. The serve command
// runs the same sweep hourly; this exists for cron jobs and operators.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired sessions from storage",
	Long: `Remove expired sessions from the configured storage backend.

With --max-age-hours, sessions older than the given age are removed
regardless of their expiry. On the Redis backend keys expire natively
and this command reports zero removals.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupMaxAgeHours, "max-age-hours", 0, "Remove sessions older than this many hours instead of expired ones")
}

func runCleanup(cmd *cobra.Command, args []string) error {
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

	var removed int
	if cleanupMaxAgeHours > 0 {
		removed, err = stores.Sessions.CleanupExpired(cmd.Context(), cleanupMaxAgeHours)
	} else {
		removed, err = stores.Sessions.CleanupExpired(cmd.Context())
	}
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d expired sessions.\n", removed)
	return nil
}
