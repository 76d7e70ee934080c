// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port      int    `env:"SERVER_PORT" envDefault:"8080"`
	AuthToken string `env:"AUTH_TOKEN"`
	DataDir   string `env:"DATA_DIR"    envDefault:".pairkit"`
	DevMode   bool   `env:"DEV_MODE"`

	// NamespacesFile is a TOML catalog of supported chains. Empty means the
	// built-in default and no reloading.
	NamespacesFile string `env:"NAMESPACES_FILE"`

	RelayURL         string        `env:"PAIRKIT_RELAY_URL"          envDefault:"wss://relay.walletconnect.org"`
	ProjectID        string        `env:"PAIRKIT_PROJECT_ID"`
	RelayDialTimeout time.Duration `env:"PAIRKIT_RELAY_DIAL_TIMEOUT" envDefault:"10s"`
	PairingTTL       time.Duration `env:"PAIRKIT_PAIRING_TTL"        envDefault:"5m"`
	SessionTTL       time.Duration `env:"PAIRKIT_SESSION_TTL"        envDefault:"168h"`
	CallTimeout      time.Duration `env:"PAIRKIT_CALL_TIMEOUT"       envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"PAIRKIT_SHUTDOWN_TIMEOUT"   envDefault:"10s"`
}

// Load parses the environment and resolves DataDir to an absolute path.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data directory: %w", err)
	}
	cfg.DataDir = abs
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required (use --auth-token flag or AUTH_TOKEN env)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RelayURL == "" {
		return fmt.Errorf("PAIRKIT_RELAY_URL is required")
	}
	return nil
}

// UsersDB is the path of the user record database.
func (c Config) UsersDB() string {
	return filepath.Join(c.DataDir, "users.db")
}
