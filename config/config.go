package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlServer configures the HTTP surface
type TomlServer struct {
	Port         int      `toml:"port"`
	Hostname     string   `toml:"hostname"`
	UserHeader   string   `toml:"user_header"`
	AllowOrigins []string `toml:"allow_origins,omitempty"`
}

// TomlStore selects and configures the post/user/blob store
type TomlStore struct {
	Driver      string `toml:"driver"` // memory, sqlite, postgres or mongo
	DSN         string `toml:"dsn"`
	Database    string `toml:"database,omitempty"` // mongo only
	AutoMigrate bool   `toml:"auto_migrate"`
}

// TomlCache configures the optional Redis cache in front of single post lookups
type TomlCache struct {
	RedisAddr string   `toml:"redis_addr,omitempty"`
	TTL       Duration `toml:"ttl"`
}

// TomlFeed holds the feed paging defaults
type TomlFeed struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit,omitempty"` // 0 disables the upper bound
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server TomlServer `toml:"server"`
	Store  TomlStore  `toml:"store"`
	Cache  TomlCache  `toml:"cache"`
	Feed   TomlFeed   `toml:"feed"`
}

// Duration decodes TOML strings like "30s" or "5m"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *TomlConfig {
	return &TomlConfig{
		Server: TomlServer{
			Port:       3000,
			Hostname:   "localhost",
			UserHeader: "X-User-Id",
		},
		Store: TomlStore{
			Driver:      "sqlite",
			DSN:         "hotfeed.db",
			Database:    "hotfeed",
			AutoMigrate: true,
		},
		Cache: TomlCache{
			TTL: Duration{time.Minute},
		},
		Feed: TomlFeed{
			DefaultLimit: 5,
		},
	}
}

// LoadConfig decodes the file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *TomlConfig) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Feed.DefaultLimit < 1 {
		return fmt.Errorf("feed.default_limit must be at least 1, got %d", c.Feed.DefaultLimit)
	}
	if c.Feed.MaxLimit != 0 && c.Feed.MaxLimit < c.Feed.DefaultLimit {
		return fmt.Errorf("feed.max_limit %d is below feed.default_limit %d", c.Feed.MaxLimit, c.Feed.DefaultLimit)
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (s TomlServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
