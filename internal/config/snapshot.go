package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SnapshotConfig returns a copy of cfg safe to persist or print: API keys
// loaded from MCP_AUTH_API_KEYS are replaced with source metadata, never
// the plaintext value.
func SnapshotConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	c := *cfg
	if len(cfg.Auth.APIKeys) > 0 {
		c.Auth.APIKeys = []string{fmt.Sprintf("<%d key(s) from env MCP_AUTH_API_KEYS>", len(cfg.Auth.APIKeys))}
	}
	return &c
}

// WriteSnapshot writes the redacted config snapshot to stateDir/config.snapshot.yaml.
func WriteSnapshot(stateDir string, cfg *Config) error {
	snap := SnapshotConfig(cfg)
	if snap == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	p := filepath.Join(stateDir, "config.snapshot.yaml")
	return os.WriteFile(p, data, 0600)
}
