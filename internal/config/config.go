package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/inletmail/inlet/internal/cache"
	"github.com/inletmail/inlet/internal/directory"
	"github.com/inletmail/inlet/internal/msgstore"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server struct {
		Hostname       string `toml:"hostname"`
		Listen         string `toml:"listen"`
		Enabled        bool   `toml:"enabled"`
		MaxMessageSize int64  `toml:"max_message_size"`
		DefaultQuota   int64  `toml:"default_quota"`
		MaxConnections int64  `toml:"max_connections"`
	} `toml:"server"`

	// Directory configuration
	Directory struct {
		Type     string         `toml:"type"`
		Host     string         `toml:"host"`
		Port     int            `toml:"port"`
		Database string         `toml:"database"`
		Username string         `toml:"username"`
		Password string         `toml:"password"`
		Options  map[string]any `toml:"options"`

		Cache struct {
			Enabled  bool   `toml:"enabled"`
			Type     string `toml:"type"`
			Host     string `toml:"host"`
			Port     int    `toml:"port"`
			Password string `toml:"password"`
			Database int    `toml:"database"`

			AddressTTL  duration `toml:"address_ttl"`
			AccountTTL  duration `toml:"account_ttl"`
			NegativeTTL duration `toml:"negative_ttl"`
		} `toml:"cache"`
	} `toml:"directory"`

	// Storage configuration
	Storage struct {
		Type string `toml:"type"`
		Root string `toml:"root"`
	} `toml:"storage"`

	// API configuration
	API struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"api"`

	// Logging configuration
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// duration wraps time.Duration so TOML values like "30s" parse directly
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Hostname = "localhost"
	cfg.Server.Listen = ":2525"
	cfg.Server.Enabled = true
	cfg.Server.MaxMessageSize = 25 * 1024 * 1024 // 25MB default
	cfg.Server.DefaultQuota = 1024 * 1024 * 1024 // 1GB fallback ceiling
	cfg.Server.MaxConnections = 100

	cfg.Directory.Type = "sqlite"
	cfg.Directory.Database = "inlet.db"

	cfg.Storage.Type = "maildir"
	cfg.Storage.Root = "/var/mail/inlet"

	cfg.API.Enabled = false
	cfg.API.Listen = "127.0.0.1:8025"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

// FindConfigFile looks for a configuration file in common locations
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("config file not found at specified path: %s", configPath)
	}

	locations := []string{
		"./inlet.toml",
		"./config/inlet.toml",
		os.ExpandEnv("$HOME/.inlet.toml"),
		"/etc/inlet/inlet.toml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}

	return "", fmt.Errorf("no config file found")
}

// LoadConfig loads a configuration from a file, falling back to defaults
// when no file exists
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	configFile, err := FindConfigFile(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing TOML configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set when the server is enabled")
	}
	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("server.max_message_size must be positive")
	}
	if c.Server.DefaultQuota <= 0 {
		return fmt.Errorf("server.default_quota must be positive")
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}

	switch c.Directory.Type {
	case "sqlite", "mysql", "postgres", "ldap", "file", "mock":
	default:
		return fmt.Errorf("unsupported directory.type: %s", c.Directory.Type)
	}

	switch c.Storage.Type {
	case "maildir":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root must be set for maildir storage")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported storage.type: %s", c.Storage.Type)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when the API is enabled")
	}

	return nil
}

// DirectoryConfig returns the directory collaborator configuration
func (c *Config) DirectoryConfig() directory.Config {
	return directory.Config{
		Type:     c.Directory.Type,
		Name:     "directory",
		Host:     c.Directory.Host,
		Port:     c.Directory.Port,
		Database: c.Directory.Database,
		Username: c.Directory.Username,
		Password: c.Directory.Password,
		Options:  c.Directory.Options,
	}
}

// CacheConfig returns the directory cache configuration
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Type:     c.Directory.Cache.Type,
		Name:     "directory-cache",
		Host:     c.Directory.Cache.Host,
		Port:     c.Directory.Cache.Port,
		Password: c.Directory.Cache.Password,
		Database: c.Directory.Cache.Database,
	}
}

// CacheTTL returns the directory cache TTLs, falling back to defaults
func (c *Config) CacheTTL() directory.CacheTTL {
	ttl := directory.DefaultCacheTTL()
	if v := time.Duration(c.Directory.Cache.AddressTTL); v > 0 {
		ttl.Address = v
	}
	if v := time.Duration(c.Directory.Cache.AccountTTL); v > 0 {
		ttl.Account = v
	}
	if v := time.Duration(c.Directory.Cache.NegativeTTL); v > 0 {
		ttl.Negative = v
	}
	return ttl
}

// StoreConfig returns the message store configuration
func (c *Config) StoreConfig() msgstore.Config {
	return msgstore.Config{
		Type: c.Storage.Type,
		Root: c.Storage.Root,
	}
}
