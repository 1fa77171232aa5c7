// Package config loads platform configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when no explicit config path is given.
const DefaultPath = "config/caffe.yaml"

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	API      APIConfig      `yaml:"api"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host" env:"SERVER_HOST"`
	Port            int    `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     int    `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    int    `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig controls the PostgreSQL connection. An empty DSN selects
// the in-memory stores.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// APITokens is a comma separated list of static service tokens.
	APITokens         string `yaml:"api_tokens" env:"API_TOKENS"`
	BootstrapUsername string `yaml:"bootstrap_username" env:"ADMIN_USERNAME"`
	BootstrapPassword string `yaml:"bootstrap_password" env:"ADMIN_PASSWORD"`
}

// APIConfig controls the middleware around the REST API.
type APIConfig struct {
	AllowedOrigin string  `yaml:"allowed_origin" env:"API_ALLOWED_ORIGIN"`
	AuditLogPath  string  `yaml:"audit_log_path" env:"API_AUDIT_LOG_PATH"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"API_RATE_PER_SECOND"`
	RateBurst     int     `yaml:"rate_burst" env:"API_RATE_BURST"`
}

// TokenList splits the configured API tokens.
func (a AuthConfig) TokenList() []string {
	if strings.TrimSpace(a.APITokens) == "" {
		return nil
	}
	parts := strings.Split(a.APITokens, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Load reads configuration from path (or DefaultPath when empty), then
// applies environment overrides. A missing file is not an error; the
// environment alone can carry the full configuration.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// fall through to env-only configuration
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 1800,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			RatePerSecond: 25,
			RateBurst:     50,
		},
	}
}
