package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	expected := []string{"serve", "auth", "cleanup", "version"}

	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func TestAuthSubcommands(t *testing.T) {
	expected := []string{"login", "status", "revoke"}

	names := map[string]bool{}
	for _, cmd := range authCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, names[name], "missing auth subcommand %q", name)
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(&auth.TokenExchangeError{StatusCode: 400, Body: "nope"}))
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(&auth.InvalidStateError{}))
}

func TestBuildStoresSQLite(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "db.sqlite")

	stores, err := buildStores(cfg)
	require.NoError(t, err)
	defer stores.Close()

	session, err := stores.Sessions.CreateSession(t.Context(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
}
