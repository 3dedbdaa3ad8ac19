package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr,omitempty"`             // Listen address (default: ":3000")
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"` // Grace period for in-flight requests
}

// DatabaseConfig selects the database driver and connection.
type DatabaseConfig struct {
	Driver         string `yaml:"driver,omitempty"`          // "sqlite3" or "pgx"
	DSN            string `yaml:"dsn,omitempty"`             // File path for sqlite3, connection URL for pgx
	MigrationsPath string `yaml:"migrations_path,omitempty"` // Empty uses the embedded schema
}

// AuthConfig holds the token signing and password hashing settings.
type AuthConfig struct {
	SecretKey  string        `yaml:"secret_key,omitempty"`
	TokenTTL   time.Duration `yaml:"token_ttl,omitempty"`
	BcryptCost int           `yaml:"bcrypt_cost,omitempty"`
}

// Config is the jobly service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "jobly.db?_foreign_keys=on",
		},
		Auth: AuthConfig{
			SecretKey:  "secret-dev",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 12,
		},
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via JOBLY_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("JOBLY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.jobly/config.yaml"
	}
	return filepath.Join(homeDir, ".jobly", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path and merges it onto the defaults.
// A missing file yields the defaults. Environment overrides (PORT, DATABASE_URL,
// SECRET_KEY) are applied last.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileConfig Config
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&cfg, fileConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env Config
	if port := os.Getenv("PORT"); port != "" {
		env.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		env.Database.DSN = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			env.Database.Driver = "pgx"
		}
	}
	env.Auth.SecretKey = os.Getenv("SECRET_KEY")

	if err := mergo.Merge(c, env, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported database.driver %q (want sqlite3 or pgx)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("missing database.dsn")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("missing auth.secret_key")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	return nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
