// Package config loads the bridge configuration from an optional YAML file
// with environment-variable overrides. Configuration is read once at process
// start; the absence of a client ID is not fatal here but becomes a
// ConfigurationError at the first auth operation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"smaregi-mcp/pkg/logging"
)

const (
	userConfigDir  = ".smaregi-mcp"
	configFileName = "config.yaml"

	defaultAuthorizationURL = "https://id.smaregi.dev/authorize"
	defaultTokenURL         = "https://id.smaregi.dev/authorize/token"
	defaultAPIBaseURL       = "https://api.smaregi.dev"
	defaultRedirectURI      = "http://127.0.0.1:3000/auth/callback"
	defaultCallbackPort     = 3000
	defaultRefreshThreshold = 300
)

// BackendSQLite selects the embedded relational store with sweep-based
// session expiry. BackendRedis selects the distributed KV store with native
// per-key TTLs.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all static configuration for the bridge.
type Config struct {
	LogLevel      string `yaml:"logLevel,omitempty"`      // debug, info, warn, error (default: info)
	ServerName    string `yaml:"serverName,omitempty"`    // MCP server name (default: smaregi)
	ServerVersion string `yaml:"serverVersion,omitempty"` // Reported MCP server version

	ClientID     string `yaml:"clientId,omitempty"`     // OAuth client ID issued by Smaregi
	ClientSecret string `yaml:"clientSecret,omitempty"` // OAuth client secret (optional for PKCE-only clients)
	ContractID   string `yaml:"contractId,omitempty"`   // Smaregi contract (tenant) identifier
	RedirectURI  string `yaml:"redirectUri,omitempty"`  // Registered OAuth callback URL

	AuthorizationURL string `yaml:"authorizationUrl,omitempty"` // Provider authorization endpoint
	TokenURL         string `yaml:"tokenUrl,omitempty"`         // Provider token endpoint
	APIBaseURL       string `yaml:"apiBaseUrl,omitempty"`       // Smaregi platform API base URL

	CallbackPort int `yaml:"callbackPort,omitempty"` // Local callback server port

	// RefreshThresholdSeconds is the near-expiry lead time that triggers a
	// proactive token refresh.
	RefreshThresholdSeconds int `yaml:"refreshThresholdSeconds,omitempty"`

	Storage StorageConfig `yaml:"storage,omitempty"`
}

// StorageConfig selects and parameterizes the session/token backend.
type StorageConfig struct {
	Backend      string      `yaml:"backend,omitempty"`      // "sqlite" (default) or "redis"
	DatabasePath string      `yaml:"databasePath,omitempty"` // SQLite file path
	Redis        RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// GetDefaultConfigPath returns the per-user configuration directory,
// ~/.smaregi-mcp.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// GetDefaults returns the built-in configuration.
func GetDefaults() Config {
	return Config{
		LogLevel:                "info",
		ServerName:              "smaregi",
		ServerVersion:           "1.0.0",
		RedirectURI:             defaultRedirectURI,
		AuthorizationURL:        defaultAuthorizationURL,
		TokenURL:                defaultTokenURL,
		APIBaseURL:              defaultAPIBaseURL,
		CallbackPort:            defaultCallbackPort,
		RefreshThresholdSeconds: defaultRefreshThreshold,
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
	}
}

// LoadConfig loads config.yaml from the given directory, falling back to
// defaults when the file does not exist, then applies environment overrides.
func LoadConfig(configPath string) (Config, error) {
	cfg := GetDefaults()

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Info("Config", "Loaded configuration from %s", configFilePath)
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
	default:
		return Config{}, fmt.Errorf("error reading %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(configPath, "database.sqlite")
	}

	return cfg, nil
}

// applyEnvOverrides lets environment variables win over the config file,
// using the variable names the hosted deployments already set.
func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.ClientID, "CLIENT_ID")
	setString(&cfg.ClientSecret, "CLIENT_SECRET")
	setString(&cfg.ContractID, "CONTRACT_ID")
	setString(&cfg.RedirectURI, "REDIRECT_URI")
	setString(&cfg.AuthorizationURL, "SMAREGI_AUTH_URL")
	setString(&cfg.TokenURL, "SMAREGI_TOKEN_ENDPOINT")
	setString(&cfg.APIBaseURL, "SMAREGI_API_URL")
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.DatabasePath, "DATABASE_PATH")
	setString(&cfg.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Storage.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Redis.DB = n
		}
	}
	if v := os.Getenv("CALLBACK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CallbackPort = n
		}
	}
	if v := os.Getenv("REFRESH_THRESHOLD_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefreshThresholdSeconds = n
		}
	}
}

// Validate checks settings that must be structurally sound before any
// component starts. The client ID is deliberately not checked here; its
// absence surfaces as a ConfigurationError on the first auth call.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, BackendSQLite, BackendRedis)
	}

	if c.Storage.Backend == BackendRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage backend %q requires a redis address", BackendRedis)
	}

	if c.AuthorizationURL == "" || c.TokenURL == "" {
		return fmt.Errorf("provider endpoints must not be empty")
	}

	return nil
}

// LogSummary logs the effective configuration at startup, truncating the
// client ID and omitting secrets entirely.
func (c *Config) LogSummary() {
	clientID := "NOT SET"
	if c.ClientID != "" {
		if len(c.ClientID) > 4 {
			clientID = c.ClientID[:4] + "..."
		} else {
			clientID = c.ClientID
		}
	}

	logging.Info("Config", "Configuration loaded: backend=%s clientId=%s redirectUri=%s authUrl=%s",
		c.Storage.Backend, clientID, c.RedirectURI, c.AuthorizationURL)

	if c.ClientID == "" {
		logging.Warn("Config", "CLIENT_ID is not set; authorization flows will fail until it is configured")
	}
}
