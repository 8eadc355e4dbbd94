package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // stats.timezone must resolve in minimal containers

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Stats     StatsConfig     `yaml:"stats"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type StatsConfig struct {
	// Timezone is the IANA zone streak days are counted in. Empty means the
	// server's local zone.
	Timezone string `yaml:"timezone"`
	// CatalogPath optionally replaces the built-in achievement catalog.
	CatalogPath string `yaml:"catalog_path"`
}

type SessionConfig struct {
	// IdleTimeout is how long a hosted session with no requests and no
	// event subscribers is kept. Zero means 30m; negative keeps sessions
	// until they finish or are abandoned.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Location returns the zone streak days are counted in.
func (s StatsConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps the configured level name to a slog.Level. Unknown or empty
// names mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPSTREAK_ and underscore-separated paths:
//
//	REPSTREAK_SERVER_HOST, REPSTREAK_SERVER_PORT,
//	REPSTREAK_DB_DRIVER, REPSTREAK_DB_PATH,
//	REPSTREAK_DB_HOST, REPSTREAK_DB_PORT, REPSTREAK_DB_NAME,
//	REPSTREAK_DB_USER, REPSTREAK_DB_PASSWORD, REPSTREAK_DB_SSLMODE,
//	REPSTREAK_AUTH_API_KEY,
//	REPSTREAK_TAILSCALE_ENABLED, REPSTREAK_TAILSCALE_HOSTNAME,
//	REPSTREAK_STATS_TIMEZONE, REPSTREAK_SESSION_IDLE_TIMEOUT,
//	REPSTREAK_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "repstreak"
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 30 * time.Minute
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPSTREAK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPSTREAK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPSTREAK_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REPSTREAK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REPSTREAK_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPSTREAK_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPSTREAK_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPSTREAK_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPSTREAK_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPSTREAK_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPSTREAK_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPSTREAK_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("REPSTREAK_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("REPSTREAK_STATS_TIMEZONE"); v != "" {
		cfg.Stats.Timezone = v
	}
	if v := os.Getenv("REPSTREAK_SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.IdleTimeout = d
		}
	}
	if v := os.Getenv("REPSTREAK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.StateDir == "" {
		return fmt.Errorf("tailscale.state_dir is required when tailscale is enabled")
	}
	if _, err := c.Stats.Location(); err != nil {
		return fmt.Errorf("stats.timezone: %w", err)
	}
	return nil
}
