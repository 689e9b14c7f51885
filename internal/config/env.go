package config

import (
	"fmt"
	"os"
	"time"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvEngineURL     = "N8N_WEBHOOK_URL"
	EnvPublicBaseURL = "APP_URL"
	EnvDiscipline    = "TRIPASSIST_DISCIPLINE"
	EnvListen        = "TRIPASSIST_LISTEN"
	EnvStore         = "TRIPASSIST_STORE"
	EnvStoreDir      = "TRIPASSIST_STORE_DIR"
	EnvSQLitePath    = "TRIPASSIST_SQLITE_PATH"
	EnvSessionTTL    = "TRIPASSIST_SESSION_TTL"
	EnvKVURL         = "KV_URL"
	EnvRedisURL      = "REDIS_URL"
	EnvLogLevel      = "TRIPASSIST_LOG_LEVEL"
)

// ApplyEnv overrides file settings with environment variables, using getenv to
// look them up (os.Getenv when nil).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.EngineURL, EnvEngineURL)
	set(&c.PublicBaseURL, EnvPublicBaseURL)
	set(&c.Discipline, EnvDiscipline)
	set(&c.Listen, EnvListen)
	set(&c.Store.Backend, EnvStore)
	set(&c.Store.Dir, EnvStoreDir)
	set(&c.Store.SQLitePath, EnvSQLitePath)
	set(&c.Store.RedisURL, EnvRedisURL)
	set(&c.Store.RedisURL, EnvKVURL)
	set(&c.Log.Level, EnvLogLevel)

	if v := getenv(EnvSessionTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvSessionTTL, err)
		}
		c.Store.TTL = ttl
	}

	return c.Validate()
}

// Load reads the YAML file at path (defaults when empty or missing) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
