package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inlet.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Hostname)
	assert.Equal(t, ":2525", cfg.Server.Listen)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, int64(25*1024*1024), cfg.Server.MaxMessageSize)
	assert.Equal(t, int64(1024*1024*1024), cfg.Server.DefaultQuota)
	assert.Equal(t, "sqlite", cfg.Directory.Type)
	assert.Equal(t, "maildir", cfg.Storage.Type)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
[server]
hostname = "mx1.example.com"
listen = ":25"
enabled = true
max_message_size = 1048576
default_quota = 10485760
max_connections = 50

[directory]
type = "postgres"
host = "db.example.com"
port = 5432
database = "mail"
username = "inlet"
password = "hunter2"

[directory.cache]
enabled = true
type = "redis"
host = "cache.example.com"
account_ttl = "10s"

[storage]
type = "maildir"
root = "/srv/mail"

[api]
enabled = true
listen = "127.0.0.1:9090"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mx1.example.com", cfg.Server.Hostname)
	assert.Equal(t, ":25", cfg.Server.Listen)
	assert.Equal(t, int64(1048576), cfg.Server.MaxMessageSize)
	assert.Equal(t, "postgres", cfg.Directory.Type)
	assert.True(t, cfg.Directory.Cache.Enabled)
	assert.Equal(t, "redis", cfg.Directory.Cache.Type)
	assert.Equal(t, "/srv/mail", cfg.Storage.Root)
	assert.True(t, cfg.API.Enabled)

	dirCfg := cfg.DirectoryConfig()
	assert.Equal(t, "postgres", dirCfg.Type)
	assert.Equal(t, "db.example.com", dirCfg.Host)

	cacheCfg := cfg.CacheConfig()
	assert.Equal(t, "redis", cacheCfg.Type)
	assert.Equal(t, "cache.example.com", cacheCfg.Host)

	ttl := cfg.CacheTTL()
	assert.Equal(t, 10*time.Second, ttl.Account)
	assert.Equal(t, 5*time.Minute, ttl.Address)
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen while enabled", func(c *Config) { c.Server.Listen = "" }},
		{"zero message size", func(c *Config) { c.Server.MaxMessageSize = 0 }},
		{"zero default quota", func(c *Config) { c.Server.DefaultQuota = 0 }},
		{"zero max connections", func(c *Config) { c.Server.MaxConnections = 0 }},
		{"bad directory type", func(c *Config) { c.Directory.Type = "dns" }},
		{"maildir without root", func(c *Config) { c.Storage.Root = "" }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "tape" }},
		{"api enabled without listen", func(c *Config) { c.API.Enabled = true; c.API.Listen = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = ":25"
max_message_size = -1
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}
