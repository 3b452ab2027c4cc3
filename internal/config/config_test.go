package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_DotEnvSetsEnvWithoutOverwritingExisting(t *testing.T) {
	t.Setenv("MCP_AUTH_PROVIDER", "")
	os.Unsetenv("MCP_AUTH_PROVIDER")
	t.Setenv("MCP_LOG_LEVEL", "warn")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "MCP_AUTH_PROVIDER=apikey\nMCP_LOG_LEVEL=debug\n")

	cfg, err := Load(Options{RootDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "apikey", cfg.Auth.Provider)
	assert.Equal(t, "warn", cfg.Logging.Level, "a variable already in the environment must win over .env")
}

func TestLoad_EnvLocalOverridesEnv(t *testing.T) {
	t.Setenv("MCP_LOG_LEVEL", "")
	os.Unsetenv("MCP_LOG_LEVEL")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "MCP_LOG_LEVEL=warn\n")
	writeFile(t, filepath.Join(dir, ".env.local"), "MCP_LOG_LEVEL=debug\n")

	cfg, err := Load(Options{RootDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSnapshotConfig_RedactsAPIKeys(t *testing.T) {
	cfg := Default()
	cfg.Auth.Provider = "apikey"
	cfg.Auth.APIKeys = []string{"sk-secret-one", "sk-secret-two"}

	snap := SnapshotConfig(&cfg)
	require.Len(t, snap.Auth.APIKeys, 1)
	assert.Contains(t, snap.Auth.APIKeys[0], "2 key(s)")

	data, err := yaml.Marshal(snap)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "sk-secret"), "snapshot must not contain plaintext secrets")
}

func TestSnapshotConfig_NilIsNil(t *testing.T) {
	assert.Nil(t, SnapshotConfig(nil))
}
