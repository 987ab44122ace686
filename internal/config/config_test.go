package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.Admin = "0xadmin"
	return cfg
}

func TestDefaultsValidateWithAdmin(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing admin", func(c *Config) { c.Ledger.Admin = "" }, "admin"},
		{"oversized platform fee", func(c *Config) { c.Ledger.PlatformFeeBps = 1001 }, "platform_fee_bps"},
		{"negative min stake", func(c *Config) { c.Ledger.MinStake = -1 }, "min_stake"},
		{"zero duration", func(c *Config) { c.Ledger.MinDuration = 0 }, "min_duration"},
		{"unknown mode", func(c *Config) { c.Mode = "observe" }, "mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"unknown custody backend", func(c *Config) { c.Custody.Backend = "vault" }, "backend"},
		{"erc20 without rpc", func(c *Config) {
			c.Custody.Backend = "erc20"
			c.Custody.Token = "0x1"
			c.Custody.Custodian = "0x2"
			c.Custody.PrivateKey = "aa"
		}, "rpc_url"},
		{"s3 without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "bucket"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServeModeRequiresBackingStores(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "serve"
	cfg.Postgres.DSN = ""
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
	assert.Contains(t, err.Error(), "redis")

	// A DSN satisfies the postgres requirement on its own.
	cfg.Postgres.DSN = "postgres://u:p@h:5432/db"
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARIBET_LEDGER_ADMIN", "0xoverride")
	t.Setenv("PARIBET_LEDGER_PLATFORM_FEE_BPS", "250")
	t.Setenv("PARIBET_LEDGER_MIN_DURATION", "2h")
	t.Setenv("PARIBET_LEDGER_AUTHORITIES", "0xa, 0xb")
	t.Setenv("PARIBET_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("PARIBET_MODE", "serve")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "0xoverride", cfg.Ledger.Admin)
	assert.Equal(t, int64(250), cfg.Ledger.PlatformFeeBps)
	assert.Equal(t, 2*time.Hour, cfg.Ledger.MinDuration)
	assert.Equal(t, []string{"0xa", "0xb"}, cfg.Ledger.Authorities)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, "serve", cfg.Mode)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Mode)
	assert.Equal(t, int64(100), cfg.Ledger.PlatformFeeBps)
}
