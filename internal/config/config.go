package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete notesync configuration
type Config struct {
	Session Session `yaml:"session"`
	Remote  Remote  `yaml:"remote"`
	Feeds   Feeds   `yaml:"feeds"`
	Views   Views   `yaml:"views"`
	Uploads Uploads `yaml:"uploads"`
	Ledger  Ledger  `yaml:"ledger"`
	Storage Storage `yaml:"storage"`
	Logging Logging `yaml:"logging"`
}

// Session identifies the local user. An empty UserID means the client is
// browsing anonymously; reactions require a user.
type Session struct {
	UserID   string `yaml:"user_id"`
	Username string `yaml:"username"`
}

// Remote contains settings for the remote notes API
type Remote struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	BackoffMs []int  `yaml:"backoff_ms"`
}

// Timeout returns the request timeout as a duration
func (r *Remote) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Feeds contains feed cache settings
type Feeds struct {
	PageSize          int `yaml:"page_size"`
	PersistDebounceMs int `yaml:"persist_debounce_ms"`
}

// PersistDebounce returns the snapshot persistence debounce interval
func (f *Feeds) PersistDebounce() time.Duration {
	if f.PersistDebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(f.PersistDebounceMs) * time.Millisecond
}

// Views contains view-count throttle settings
type Views struct {
	TTLMinutes      int `yaml:"ttl_minutes"`
	VisitedTTLHours int `yaml:"visited_ttl_hours"`
}

// TTL returns the view-increment throttle window
func (v *Views) TTL() time.Duration {
	if v.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(v.TTLMinutes) * time.Minute
}

// VisitedTTL returns how long a note stays marked as visited
func (v *Views) VisitedTTL() time.Duration {
	if v.VisitedTTLHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(v.VisitedTTLHours) * time.Hour
}

// Uploads contains pending-upload tracker settings
type Uploads struct {
	CleanupOnStart bool `yaml:"cleanup_on_start"`
}

// Ledger contains TTL ledger backend settings
type Ledger struct {
	Engine   string `yaml:"engine"` // memory|redis|sqlite
	RedisURL string `yaml:"redis_url"`
}

// Storage contains local persistence settings
type Storage struct {
	Driver     string `yaml:"driver"` // sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for missing fields
	applyDefaults(&cfg)

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in defaults for any fields left empty in the file
func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = defaults.Remote.BaseURL
	}
	if cfg.Remote.TimeoutMs == 0 {
		cfg.Remote.TimeoutMs = defaults.Remote.TimeoutMs
	}
	if len(cfg.Remote.BackoffMs) == 0 {
		cfg.Remote.BackoffMs = defaults.Remote.BackoffMs
	}
	if cfg.Feeds.PageSize == 0 {
		cfg.Feeds.PageSize = defaults.Feeds.PageSize
	}
	if cfg.Feeds.PersistDebounceMs == 0 {
		cfg.Feeds.PersistDebounceMs = defaults.Feeds.PersistDebounceMs
	}
	if cfg.Views.TTLMinutes == 0 {
		cfg.Views.TTLMinutes = defaults.Views.TTLMinutes
	}
	if cfg.Views.VisitedTTLHours == 0 {
		cfg.Views.VisitedTTLHours = defaults.Views.VisitedTTLHours
	}
	if cfg.Ledger.Engine == "" {
		cfg.Ledger.Engine = defaults.Ledger.Engine
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaults.Storage.SQLitePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if baseURL := os.Getenv("NOTESYNC_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if userID := os.Getenv("NOTESYNC_USER_ID"); userID != "" {
		cfg.Session.UserID = userID
	}
	if username := os.Getenv("NOTESYNC_USERNAME"); username != "" {
		cfg.Session.Username = username
	}
	// Redis URL from env if using redis
	if redisURL := os.Getenv("NOTESYNC_REDIS_URL"); redisURL != "" {
		cfg.Ledger.RedisURL = redisURL
	}
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Session: Session{},
		Remote: Remote{
			BaseURL:   "http://localhost:3500",
			TimeoutMs: 10000,
			BackoffMs: []int{500, 1500, 5000},
		},
		Feeds: Feeds{
			PageSize:          10,
			PersistDebounceMs: 500,
		},
		Views: Views{
			TTLMinutes:      30,
			VisitedTTLHours: 2,
		},
		Uploads: Uploads{
			CleanupOnStart: true,
		},
		Ledger: Ledger{
			Engine: "memory",
		},
		Storage: Storage{
			Driver:     "sqlite",
			SQLitePath: "./data/notesync.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// validLogLevels defines allowed log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLedgerEngines defines allowed ledger backends
var validLedgerEngines = map[string]bool{
	"memory": true,
	"redis":  true,
	"sqlite": true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	// Validate remote API settings
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if cfg.Remote.TimeoutMs < 0 {
		return fmt.Errorf("remote.timeout_ms must be non-negative")
	}
	for _, ms := range cfg.Remote.BackoffMs {
		if ms <= 0 {
			return fmt.Errorf("remote.backoff_ms entries must be positive")
		}
	}

	// Validate feed settings
	if cfg.Feeds.PageSize <= 0 {
		return fmt.Errorf("feeds.page_size must be positive")
	}

	// Validate throttle windows
	if cfg.Views.TTLMinutes <= 0 {
		return fmt.Errorf("views.ttl_minutes must be positive")
	}
	if cfg.Views.VisitedTTLHours <= 0 {
		return fmt.Errorf("views.visited_ttl_hours must be positive")
	}

	// Validate ledger engine
	if !validLedgerEngines[cfg.Ledger.Engine] {
		return fmt.Errorf("invalid ledger engine: %s (must be one of: memory, redis, sqlite)", cfg.Ledger.Engine)
	}
	if cfg.Ledger.Engine == "redis" && cfg.Ledger.RedisURL == "" {
		return fmt.Errorf("ledger.redis_url is required when ledger.engine is redis")
	}

	// Validate storage driver
	if cfg.Storage.Driver != "sqlite" {
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}

	// Validate log level
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Logging.Format)
	}

	return nil
}
