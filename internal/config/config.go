// Package config loads the pipecanvas server configuration from the
// environment.
//
// Environment Variables:
//
//   - PIPECANVAS_ADDR: listen address (default: :8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FORMAT: text or json (default: text)
//   - DATABASE_TYPE: memory, sqlite or postgres (default: sqlite)
//   - DATABASE_PATH: SQLite file (default: ./pipecanvas.db)
//   - DATABASE_URL: PostgreSQL DSN (required for postgres)
//   - REDIS_ADDRESS: enables the shared manifest cache when set
//   - REDIS_PASSWORD, REDIS_DB (0-15, default 0)
//   - MANIFEST_DIR: directory of YAML operator manifests merged over the built-ins
//   - MANIFEST_CACHE_TTL: manifest cache lifetime (default: 5m)
//   - SEED_SYSTEM_TEMPLATES: upsert the built-in templates on start (default: true)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/store"
)

// Config holds the server settings. Call Validate before use.
type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	DatabaseType string
	DatabasePath string
	DatabaseURL  string

	RedisAddress  string
	RedisPassword string
	RedisDB       string

	ManifestDir      string
	ManifestCacheTTL string

	SeedSystemTemplates bool
}

// Load reads the environment, falling back to defaults for unset variables.
func Load() *Config {
	return &Config{
		Addr:      getEnv("PIPECANVAS_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DatabaseType: getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath: getEnv("DATABASE_PATH", "./pipecanvas.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),

		ManifestDir:      getEnv("MANIFEST_DIR", ""),
		ManifestCacheTTL: getEnv("MANIFEST_CACHE_TTL", "5m"),

		SeedSystemTemplates: getBoolEnv("SEED_SYSTEM_TEMPLATES", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("PIPECANVAS_ADDR must not be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json'")
	}

	switch c.DatabaseType {
	case "memory":
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres", "postgresql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when using PostgreSQL")
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'memory', 'sqlite' or 'postgres'")
	}

	if c.RedisAddress != "" {
		if _, err := c.RedisDBNumber(); err != nil {
			return err
		}
	}

	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	return nil
}

// RedisDBNumber parses REDIS_DB.
func (c *Config) RedisDBNumber() (int, error) {
	db, err := strconv.Atoi(c.RedisDB)
	if err != nil || db < 0 || db > 15 {
		return 0, fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}
	return db, nil
}

// CacheTTL parses MANIFEST_CACHE_TTL.
func (c *Config) CacheTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.ManifestCacheTTL)
	if err != nil || ttl <= 0 {
		return 0, fmt.Errorf("MANIFEST_CACHE_TTL must be a positive duration (e.g., '30s', '5m')")
	}
	return ttl, nil
}

// Store returns the template store settings.
func (c *Config) Store() store.Config {
	return store.Config{Type: c.DatabaseType, Path: c.DatabasePath, URL: c.DatabaseURL}
}
