package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/pkg/logging"
)

var loginScopes []string

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to Smaregi",
	Long: `Authenticate to the Smaregi identity provider using OAuth with PKCE.

This command starts a local callback server, prints the authorization
URL for you to open in a browser, and waits for the provider redirect
to complete the flow.

Examples:
  smaregi-mcp auth login
  smaregi-mcp auth login --scope pos.products:read --scope pos.stores:read`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().StringArrayVar(&loginScopes, "scope", nil, "Permission scope to request (repeatable)")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()

	callback := auth.NewCallbackServer(cfg.CallbackPort, callbackPathFromURI(cfg.RedirectURI))
	if err := callback.Start(ctx); err != nil {
		return err
	}
	defer callback.Stop()

	authURL, sessionID, err := manager.GetAuthorizationURL(ctx, loginScopes)
	if err != nil {
		return err
	}

	fmt.Println("Open the following URL in your browser to authenticate:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for authentication..."
	s.Start()

	waitCtx, cancel := context.WithTimeout(ctx, auth.CallbackTimeout)
	defer cancel()

	result, err := callback.WaitForCallback(waitCtx)
	s.Stop()
	if err != nil {
		return fmt.Errorf("waiting for callback: %w", err)
	}
	if result.IsError() {
		return fmt.Errorf("authorization failed: %s (%s)", result.Error, result.ErrorDescription)
	}

	if _, err := manager.HandleCallback(ctx, result.Code, result.State); err != nil {
		return err
	}

	fmt.Println(text.FgGreen.Sprint("Authentication complete."))
	fmt.Printf("Session: %s\n", sessionID)
	return nil
}
