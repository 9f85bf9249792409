package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a minimal configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		ServerURL:             "https://forge.example.com/api/server",
		RequestTimeoutSeconds: 30,
		DownloadDir:           "/tmp/forgectl-downloads",
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FORGE_SERVER_URL", "https://forge.example.com")
	t.Setenv("FORGE_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://forge.example.com", cfg.ServerURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
}

func TestLoad_MissingServerURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FORGE_SERVER_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingServerURL)
}

func TestBearerToken_InlineWinsOverFile(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("file-token\n"), 0o600))

	cfg := validConfig()
	cfg.Token = "inline-token"
	cfg.TokenFile = tokenFile

	token, ok := cfg.BearerToken()
	assert.True(t, ok)
	assert.Equal(t, "inline-token", token)
}

func TestBearerToken_FromFile(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("  file-token\n"), 0o600))

	cfg := validConfig()
	cfg.TokenFile = tokenFile

	token, ok := cfg.BearerToken()
	assert.True(t, ok)
	assert.Equal(t, "file-token", token, "token file content should be trimmed")
}

func TestBearerToken_None(t *testing.T) {
	cfg := validConfig()

	token, ok := cfg.BearerToken()
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestString_MasksToken(t *testing.T) {
	cfg := validConfig()
	cfg.Token = "super-secret-bearer-token"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret-bearer-token")
	assert.Contains(t, s, maskedValue)
}

func TestString_MasksShortTokenEntirely(t *testing.T) {
	cfg := validConfig()
	cfg.Token = "abc123"

	s := cfg.String()
	assert.NotContains(t, s, "abc123")
	// Short secrets must not leak even their first characters
	assert.False(t, strings.Contains(s, `"token":"ab`), "short token prefix leaked: %s", s)
}
