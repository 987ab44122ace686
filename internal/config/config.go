// Package config defines the top-level configuration for the paribet ledger
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PARIBET_* environment
// variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Custody  CustodyConfig  `toml:"custody"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the betting-core parameters.
type LedgerConfig struct {
	Admin          string        `toml:"admin"`
	PlatformFeeBps int64         `toml:"platform_fee_bps"`
	MinStake       int64         `toml:"min_stake"`
	MinDuration    time.Duration `toml:"min_duration"`
	FeeRecipient   string        `toml:"fee_recipient"`
	Authorities    []string      `toml:"authorities"`
}

// CustodyConfig selects and configures the treasury backend.
type CustodyConfig struct {
	// Backend is "bank" (in-memory, demo) or "erc20" (on-chain).
	Backend string `toml:"backend"`

	// OpeningBalance seeds bank accounts on first touch (bank backend only).
	OpeningBalance int64 `toml:"opening_balance"`

	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	Token            string `toml:"token"`
	Custodian        string `toml:"custodian"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Port            int           `toml:"port"`
	CORSOrigins     []string      `toml:"cors_origins"`
	APIKey          string        `toml:"api_key"`
	RateLimit       int           `toml:"rate_limit"`
	RateLimitWindow time.Duration `toml:"rate_limit_window"`
}

// NotifyConfig holds operator notification parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

var validModes = map[string]bool{
	"serve": true,
	"demo":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			PlatformFeeBps: 100,
			MinStake:       1,
			MinDuration:    time.Minute,
		},
		Custody: CustodyConfig{
			Backend:        "bank",
			OpeningBalance: 1_000_000,
			ChainID:        137,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "paribet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "paribet-settlements",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8080,
			RateLimit:       60,
			RateLimitWindow: time.Minute,
		},
		Mode:     "demo",
		LogLevel: "info",
	}
}

// Validate checks the configuration for consistency and returns an error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, demo)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Ledger.Admin == "" {
		errs = append(errs, "ledger: admin must not be empty")
	}
	if c.Ledger.PlatformFeeBps < 0 || c.Ledger.PlatformFeeBps > 1000 {
		errs = append(errs, fmt.Sprintf("ledger: platform_fee_bps must be in [0, 1000], got %d", c.Ledger.PlatformFeeBps))
	}
	if c.Ledger.MinStake < 0 {
		errs = append(errs, "ledger: min_stake must not be negative")
	}
	if c.Ledger.MinDuration <= 0 {
		errs = append(errs, "ledger: min_duration must be positive")
	}

	switch c.Custody.Backend {
	case "bank":
		if c.Custody.OpeningBalance < 0 {
			errs = append(errs, "custody: opening_balance must not be negative")
		}
	case "erc20":
		if c.Custody.RPCURL == "" {
			errs = append(errs, "custody: rpc_url is required for the erc20 backend")
		}
		if c.Custody.ChainID <= 0 {
			errs = append(errs, "custody: chain_id must be positive")
		}
		if c.Custody.Token == "" {
			errs = append(errs, "custody: token address is required for the erc20 backend")
		}
		if c.Custody.Custodian == "" {
			errs = append(errs, "custody: custodian address is required for the erc20 backend")
		}
		if c.Custody.PrivateKey == "" && c.Custody.EncryptedKeyPath == "" {
			errs = append(errs, "custody: either private_key or encrypted_key_path must be set")
		}
		if c.Custody.EncryptedKeyPath != "" && c.Custody.KeyPassword == "" {
			errs = append(errs, "custody: key_password is required when encrypted_key_path is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("custody: unknown backend %q (valid: bank, erc20)", c.Custody.Backend))
	}

	// Postgres only matters in serve mode; demo runs purely in memory.
	if strings.ToLower(c.Mode) == "serve" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be in (0, 65535], got %d", c.Postgres.Port))
			}
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be in (0, 65535], got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
