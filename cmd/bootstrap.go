package cmd

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smaregi-mcp/internal/auth"
	"smaregi-mcp/internal/config"
	"smaregi-mcp/internal/store"
)

// loadConfig resolves the config directory (--config flag or the default
// under the user's home) and loads the effective configuration.
func loadConfig() (config.Config, error) {
	dir := configPath
	if dir == "" {
		var err error
		dir, err = config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// storeSet bundles the two store contracts with a single close handle. Both
// backends implement the pair on one object.
type storeSet struct {
	Sessions auth.SessionStore
	Tokens   auth.TokenStore
}

func (s *storeSet) Close() error {
	// Sessions and Tokens share the same backing object.
	return s.Sessions.Close()
}

// buildStores constructs the configured storage backend.
func buildStores(cfg config.Config) (*storeSet, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		s := store.NewRedisStore(client, cfg.RedirectURI)
		return &storeSet{Sessions: s, Tokens: s}, nil

	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.Storage.DatabasePath, cfg.RedirectURI)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return &storeSet{Sessions: s, Tokens: s}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildManager wires the auth manager over the given stores.
func buildManager(cfg config.Config, stores *storeSet) *auth.Manager {
	return auth.NewManager(auth.ManagerConfig{
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		ContractID:       cfg.ContractID,
		AuthorizationURL: cfg.AuthorizationURL,
		TokenURL:         cfg.TokenURL,
		RedirectURI:      cfg.RedirectURI,
		RefreshThreshold: time.Duration(cfg.RefreshThresholdSeconds) * time.Second,
	}, stores.Sessions, stores.Tokens)
}
