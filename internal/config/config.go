// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.forgectl/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: base URL of the remote build service
//   - Auth: bearer token, either inline or read from a token file
//   - HTTP: per-request timeout for the transport layer
//   - Download: directory for fetched build artifacts
//
// Security: The bearer token is never logged; it is masked in MarshalJSON().
// Validation: fail-fast range and format checks in validation.go.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingServerURL indicates the build server URL is not set.
	ErrMissingServerURL = errors.New("missing server URL")

	// ErrInvalidServerURL indicates the build server URL is malformed.
	ErrInvalidServerURL = errors.New("invalid server URL")

	// ErrInvalidRequestTimeout indicates the HTTP request timeout is out of range.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout")

	// ErrInvalidDownloadDir indicates the download directory is invalid.
	ErrInvalidDownloadDir = errors.New("invalid download directory")

	// ErrTokenFileUnreadable indicates the configured token file cannot be read.
	ErrTokenFileUnreadable = errors.New("token file unreadable")
)

const (
	// DefaultRequestTimeout bounds a single HTTP round trip. It deliberately
	// applies per request, never to a whole build: long compilations are
	// tracked by polling, so the client must not impose a ceiling on them.
	DefaultRequestTimeout = 30 * time.Second

	// MinRequestTimeout is the minimum allowed per-request timeout.
	MinRequestTimeout = 1 * time.Second

	// MaxRequestTimeout is the maximum allowed per-request timeout.
	MaxRequestTimeout = 10 * time.Minute
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (tokens, passwords), update MarshalJSON.
type Config struct {
	// ServerURL is the base URL of the remote build service,
	// e.g. "https://forge.example.com/api/server".
	ServerURL string `mapstructure:"server_url" json:"server_url"`

	// Token is the bearer token attached to outbound requests.
	// SENSITIVE: masked in MarshalJSON.
	Token string `mapstructure:"token" json:"token"`

	// TokenFile is an optional path to a file holding the bearer token.
	// Used when Token is empty; the file content is trimmed of whitespace.
	TokenFile string `mapstructure:"token_file" json:"token_file"`

	// RequestTimeoutSeconds bounds each HTTP round trip (not the polling loop).
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`

	// DownloadDir is where fetched build artifacts are written.
	DownloadDir string `mapstructure:"download_dir" json:"download_dir"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.forgectl/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".forgectl")

	// Ensure directory exists (0750 keeps the token file private to the user)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, home)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("server_url", "")
	v.SetDefault("token", "")
	v.SetDefault("token_file", "")
	v.SetDefault("request_timeout_seconds", int(DefaultRequestTimeout/time.Second))
	v.SetDefault("download_dir", filepath.Join(home, ".forgectl", "downloads"))
}

// bindEnvVariables binds environment variables explicitly.
// FORGE_TOKEN is the only secret; the rest are operational overrides.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("server_url", "FORGE_SERVER_URL")
	mustBind("token", "FORGE_TOKEN")
	mustBind("token_file", "FORGE_TOKEN_FILE")
	mustBind("download_dir", "FORGE_DOWNLOAD_DIR")
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BearerToken resolves the bearer token for outbound requests.
// Returns the token and true when one is available. The inline token wins
// over the token file. A missing token is not an error here: the server
// decides whether unauthenticated requests are acceptable.
func (c *Config) BearerToken() (string, bool) {
	if c.Token != "" {
		return c.Token, true
	}
	if c.TokenFile != "" {
		data, err := os.ReadFile(c.TokenFile)
		if err != nil {
			slog.Warn("failed to read token file", "path", c.TokenFile, "error", err)
			return "", false
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", false
		}
		return token, true
	}
	return "", false
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked to prevent substring
// matching; longer ones show the first and last 2 characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - Token
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Token = maskSecret(a.Token)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
