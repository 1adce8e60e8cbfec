package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BATCH_BOOTSTRAP_SERVER_URL
const EnvPrefix = "BATCH_BOOTSTRAP"

// Config represents the entire application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains analysis server settings
type ServerConfig struct {
	URL            string `mapstructure:"url"`
	ClientToken    string `mapstructure:"client_token"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
	ReadTimeout    string `mapstructure:"read_timeout"`
}

// CacheConfig contains content cache settings
type CacheConfig struct {
	RootDir  string `mapstructure:"root_dir"`
	BootDir  string `mapstructure:"boot_dir"`
	Disabled bool   `mapstructure:"disabled"`
}

// LedgerConfig contains usage ledger settings. An empty path disables the ledger.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains cache sweep settings
type MaintenanceConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval"`
	TempFileMaxAge  string `mapstructure:"temp_file_max_age"`
	EntryMaxAge     string `mapstructure:"entry_max_age"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"server-url":   "server.url",
	"client-token": "server.client_token",
	"cache-dir":    "cache.root_dir",
	"boot-dir":     "cache.boot_dir",
	"no-cache":     "cache.disabled",
	"ledger":       "ledger.path",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

// RegisterFlags adds the configuration flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("server-url", "", "Base URL of the analysis server")
	fs.String("client-token", "", "Client identifier appended to the User-Agent")
	fs.String("cache-dir", "", "Content cache root (empty disables caching)")
	fs.String("boot-dir", "", "Directory for uncached artifacts (default: a new temp dir)")
	fs.Bool("no-cache", false, "Disable the content cache")
	fs.String("ledger", "", "Path of the usage ledger database")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: json, text")
}

// Load loads configuration from an optional file, the environment and flags.
// Precedence: flags, environment, file, defaults.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.url", "")
	v.SetDefault("server.client_token", "")
	v.SetDefault("server.connect_timeout", "30s")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("cache.root_dir", "")
	v.SetDefault("cache.boot_dir", "")
	v.SetDefault("cache.disabled", false)
	v.SetDefault("ledger.path", "")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("maintenance.entry_max_age", "720h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server.url: %q", c.Server.URL)
	}

	durations := map[string]string{
		"server.connect_timeout":        c.Server.ConnectTimeout,
		"server.read_timeout":           c.Server.ReadTimeout,
		"maintenance.cleanup_interval":  c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age": c.Maintenance.TempFileMaxAge,
		"maintenance.entry_max_age":     c.Maintenance.EntryMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// CacheRoot returns the effective cache root, empty when caching is off
func (c *CacheConfig) CacheRoot() string {
	if c.Disabled {
		return ""
	}
	return c.RootDir
}

// GetConnectTimeout returns the connect timeout as time.Duration
func (c *ServerConfig) GetConnectTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetCleanupInterval returns the sweep interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetTempFileMaxAge returns the staging file max age as time.Duration
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}

// GetEntryMaxAge returns the unused entry max age. "0" disables entry sweeping.
func (c *MaintenanceConfig) GetEntryMaxAge() time.Duration {
	d, err := time.ParseDuration(c.EntryMaxAge)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}
