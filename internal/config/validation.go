package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. Server URL validation (required for every operation)
	if c.ServerURL == "" {
		return fmt.Errorf("%w: set server_url in config.yaml or FORGE_SERVER_URL",
			ErrMissingServerURL)
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidServerURL, c.ServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidServerURL, c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidServerURL, c.ServerURL)
	}

	// 2. Request timeout range
	timeout := time.Duration(c.RequestTimeoutSeconds) * time.Second
	if timeout < MinRequestTimeout || timeout > MaxRequestTimeout {
		return fmt.Errorf("%w: must be between %s and %s, got %s",
			ErrInvalidRequestTimeout, MinRequestTimeout, MaxRequestTimeout, timeout)
	}

	// 3. Download directory must be set (created lazily on first download)
	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download_dir cannot be empty", ErrInvalidDownloadDir)
	}

	// 4. Token file, when configured, must exist and be readable now.
	// Failing at load time beats failing mid-build.
	if c.Token == "" && c.TokenFile != "" {
		if _, err := os.Stat(c.TokenFile); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrTokenFileUnreadable, c.TokenFile, err)
		}
	}

	return nil
}
