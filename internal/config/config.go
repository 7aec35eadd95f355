package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the imgjobs console and CLI.
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Console  ConsoleConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// BackendConfig describes the remote image-processing API.
type BackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

type ConsoleConfig struct {
	// TokenHash is a bcrypt hash of the console bearer token.
	// Empty disables authentication.
	TokenHash         string
	RequestsPerMinute int
	StatusTTL         time.Duration
}

// DatabaseConfig is optional; an empty URL disables job history.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL disables the status cache.
type RedisConfig struct {
	URL string
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env.local file in the working directory or its parent is loaded first;
// variables already set in the environment win.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("IMGJOBS_PORT", 8000),
			Env:  envString("IMGJOBS_ENV", "development"),
		},
		Backend: BackendConfig{
			BaseURL:      envString("IMGJOBS_API_URL", "http://localhost:8001"),
			Timeout:      envDuration("IMGJOBS_API_TIMEOUT", 30*time.Second),
			PollInterval: envDuration("IMGJOBS_POLL_INTERVAL", time.Second),
		},
		Console: ConsoleConfig{
			TokenHash:         os.Getenv("IMGJOBS_CONSOLE_TOKEN_HASH"),
			RequestsPerMinute: envInt("IMGJOBS_RATE_LIMIT_PER_MIN", 30),
			StatusTTL:         envDuration("IMGJOBS_STATUS_TTL", 30*time.Minute),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("IMGJOBS_API_URL is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("IMGJOBS_API_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}

	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("IMGJOBS_POLL_INTERVAL must be positive, got %s", c.Backend.PollInterval)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("IMGJOBS_API_TIMEOUT must be positive, got %s", c.Backend.Timeout)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("IMGJOBS_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Console.TokenHash != "" && !strings.HasPrefix(c.Console.TokenHash, "$2") {
		return fmt.Errorf("IMGJOBS_CONSOLE_TOKEN_HASH must be a bcrypt hash")
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}

	if c.Redis.URL != "" &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	return nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are read as milliseconds.
		if ms, convErr := strconv.Atoi(v); convErr == nil {
			return time.Duration(ms) * time.Millisecond
		}
		return defaultVal
	}
	return d
}
