// Package config loads tripassist settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Submission disciplines. Exactly one is active per process.
const (
	DisciplineAsync = "async"
	DisciplineSync  = "sync"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds the server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// EngineURL is the workflow engine's webhook endpoint.
	EngineURL string `yaml:"engine_url"`
	// PublicBaseURL is this application's externally reachable address, used to
	// build the callback URL handed to the engine.
	PublicBaseURL string `yaml:"public_base_url"`
	// Discipline selects async (callback) or sync (response body) submission.
	Discipline string `yaml:"discipline"`

	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig tunes the outbound engine client.
type EngineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects and parameterizes the session store backend.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Dir is the session directory of the file backend.
	Dir string `yaml:"dir"`
	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
	// RedisURL is a redis:// or rediss:// URL for the redis backend.
	RedisURL string `yaml:"redis_url"`
	// Prefix namespaces redis keys and channels.
	Prefix string `yaml:"prefix"`
}

// StreamConfig tunes the server-sent-events delivery.
type StreamConfig struct {
	KeepAlive time.Duration `yaml:"keep_alive"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     "127.0.0.1:9002",
		Discipline: DisciplineAsync,
		Engine: EngineConfig{
			Timeout: 120 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendMemory,
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
			Dir:           filepath.Join(os.TempDir(), "tripassist-sessions"),
			SQLitePath:    filepath.Join(defaultHome(), "sessions.db"),
			Prefix:        "tripassist",
		},
		Stream: StreamConfig{
			KeepAlive: 20 * time.Second,
			Timeout:   180 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.tripassist/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	return LoadConfig(DefaultPath())
}

// DefaultPath returns ~/.tripassist/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultHome(), "config.yaml")
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is structurally valid. The engine URL and
// public base URL are not required here; their absence is reported per request.
func (c *Config) Validate() error {
	switch c.Discipline {
	case DisciplineAsync, DisciplineSync:
	default:
		return fmt.Errorf("invalid discipline %q, must be: async or sync", c.Discipline)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend %q, must be: memory, file, redis, or sqlite", c.Store.Backend)
	}

	if c.Store.TTL <= 0 {
		return fmt.Errorf("store.ttl must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.sweep_interval must be positive")
	}
	if c.Store.Backend == BackendFile && c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required for the file backend")
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisURL == "" {
		return fmt.Errorf("store.redis_url is required for the redis backend")
	}
	if c.Stream.KeepAlive <= 0 || c.Stream.Timeout <= 0 {
		return fmt.Errorf("stream.keep_alive and stream.timeout must be positive")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	return nil
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tripassist")
	}
	return filepath.Join(home, ".tripassist")
}
