package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_DefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Auth.Provider)
	assert.Equal(t, 64, cfg.Queue.MaxConcurrent)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "queue:\n  maxConcurrent: 10\n  strategy: queue\n  sleepIntervalMs: 50\n")

	cfg, err := Load(Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Queue.MaxConcurrent)
	assert.Equal(t, "queue", cfg.Queue.Strategy)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "auth:\n  provider: none\n")
	t.Setenv("MCP_AUTH_PROVIDER", "apikey")

	cfg, err := Load(Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "apikey", cfg.Auth.Provider)
}

func TestLoad_OverridesWinOverEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  listen: \"0.0.0.0:9999\"\n")
	t.Setenv("MCP_SERVER_LISTEN", "10.0.0.1:1111")

	override := "127.0.0.1:7777"
	cfg, err := Load(Options{
		ConfigPath: path,
		Overrides:  &Overrides{ServerListen: &override},
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Listen)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server: [this is not valid: yaml\n")

	_, err := Load(Options{ConfigPath: path})
	require.Error(t, err)
}

func TestLoad_ValidatesByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "auth:\n  provider: oidc\n")

	_, err := Load(Options{ConfigPath: path})
	require.Error(t, err, "oidc without issuer must fail validation")
}

func TestLoad_SkipValidateBypassesValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "auth:\n  provider: oidc\n")

	cfg, err := Load(Options{ConfigPath: path, SkipValidate: true})
	require.NoError(t, err)
	assert.Equal(t, "oidc", cfg.Auth.Provider)
}
