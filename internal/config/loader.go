package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARIBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARIBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Admin, "PARIBET_LEDGER_ADMIN")
	setInt64(&cfg.Ledger.PlatformFeeBps, "PARIBET_LEDGER_PLATFORM_FEE_BPS")
	setInt64(&cfg.Ledger.MinStake, "PARIBET_LEDGER_MIN_STAKE")
	setDuration(&cfg.Ledger.MinDuration, "PARIBET_LEDGER_MIN_DURATION")
	setStr(&cfg.Ledger.FeeRecipient, "PARIBET_LEDGER_FEE_RECIPIENT")
	setStringSlice(&cfg.Ledger.Authorities, "PARIBET_LEDGER_AUTHORITIES")

	// ── Custody ──
	setStr(&cfg.Custody.Backend, "PARIBET_CUSTODY_BACKEND")
	setInt64(&cfg.Custody.OpeningBalance, "PARIBET_CUSTODY_OPENING_BALANCE")
	setStr(&cfg.Custody.RPCURL, "PARIBET_CUSTODY_RPC_URL")
	setInt64(&cfg.Custody.ChainID, "PARIBET_CUSTODY_CHAIN_ID")
	setStr(&cfg.Custody.Token, "PARIBET_CUSTODY_TOKEN")
	setStr(&cfg.Custody.Custodian, "PARIBET_CUSTODY_CUSTODIAN")
	setStr(&cfg.Custody.PrivateKey, "PARIBET_CUSTODY_PRIVATE_KEY")
	setStr(&cfg.Custody.EncryptedKeyPath, "PARIBET_CUSTODY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Custody.KeyPassword, "PARIBET_CUSTODY_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PARIBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PARIBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PARIBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PARIBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PARIBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PARIBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PARIBET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PARIBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PARIBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PARIBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PARIBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARIBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARIBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARIBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARIBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARIBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PARIBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PARIBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARIBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARIBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARIBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARIBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARIBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARIBET_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "PARIBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PARIBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARIBET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PARIBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PARIBET_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARIBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARIBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARIBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARIBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PARIBET_MODE")
	setStr(&cfg.LogLevel, "PARIBET_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}
