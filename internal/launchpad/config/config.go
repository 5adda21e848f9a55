package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	MnemonicFile string `envconfig:"LAUNCHPAD_MNEMONIC_FILE"`
	DBPath       string `envconfig:"LAUNCHPAD_DB_PATH" default:"./data/launchpad.sqlite"`
	Port         int    `envconfig:"LAUNCHPAD_PORT" default:"8080"`
	LogLevel     string `envconfig:"LAUNCHPAD_LOG_LEVEL" default:"info"`
	LogDir       string `envconfig:"LAUNCHPAD_LOG_DIR" default:"./logs"`
	Network      string `envconfig:"LAUNCHPAD_NETWORK" default:"testnet"`

	DefaultFeeRate        uint64 `envconfig:"LAUNCHPAD_DEFAULT_FEE_RATE" default:"4"`
	RequiredConfirmations uint32 `envconfig:"LAUNCHPAD_REQUIRED_CONFIRMATIONS" default:"0"`
	EnableRetries         bool   `envconfig:"LAUNCHPAD_ENABLE_RETRIES" default:"true"`
	MaxRetries            int    `envconfig:"LAUNCHPAD_MAX_RETRIES" default:"3"`

	FeeRefreshInterval       string `envconfig:"LAUNCHPAD_FEE_REFRESH_INTERVAL" default:"10m"`
	ConfirmationPollInterval string `envconfig:"LAUNCHPAD_CONFIRMATION_POLL_INTERVAL" default:"1m"`
	LostTimeout              string `envconfig:"LAUNCHPAD_LOST_TIMEOUT" default:"2h"`

	RateLimitPerMinute int `envconfig:"LAUNCHPAD_RATE_LIMIT_PER_MINUTE" default:"60"`

	OwnerPrincipal string `envconfig:"LAUNCHPAD_OWNER_PRINCIPAL"`
}

// Load reads configuration from .env file (if present) then from environment variables.
// Environment variables override .env values.
func Load() (*Config, error) {
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	switch c.Network {
	case "mainnet", "testnet", "regtest":
	default:
		return fmt.Errorf("%w: network must be \"mainnet\", \"testnet\", or \"regtest\", got %q", ErrInvalidConfig, c.Network)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.OwnerPrincipal == "" {
		return fmt.Errorf("%w: LAUNCHPAD_OWNER_PRINCIPAL is required", ErrInvalidConfig)
	}
	return nil
}
