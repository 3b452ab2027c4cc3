package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options configures config loading. ConfigPath is relative to RootDir if
// not absolute; file absence is not an error, per spec.md §6.
type Options struct {
	ConfigPath   string
	RootDir      string
	SkipValidate bool
	Overrides    *Overrides
}

// Overrides holds CLI flag values that take precedence over everything
// else. Only non-nil fields are applied; callers pass nil for flags not
// explicitly set on the command line.
type Overrides struct {
	ServerListen *string
	ServerMCPPath *string
}

// Load builds config with precedence environment > YAML file > defaults,
// per spec.md §6, then applies any CLI-flag Overrides on top (the
// highest-precedence layer, matching the teacher's own flags-win
// convention for the handful of settings the CLI exposes as flags).
func Load(opts Options) (*Config, error) {
	cfg := Default()

	root := opts.RootDir
	if root == "" {
		root = "."
	}
	// .env.local is loaded first: since loading never overwrites a variable
	// already set, its values win over .env.
	if err := loadDotEnvFiles(filepath.Join(root, ".env.local"), filepath.Join(root, ".env")); err != nil {
		return nil, fmt.Errorf("CONFIG_INVALID: loading .env: %w", err)
	}

	configPath := opts.ConfigPath
	if configPath != "" {
		if !filepath.IsAbs(configPath) && opts.RootDir != "" {
			configPath = filepath.Join(opts.RootDir, configPath)
		}
		data, err := os.ReadFile(configPath)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("CONFIG_INVALID: malformed YAML in %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("CONFIG_INVALID: reading %s: %w", configPath, err)
		}
	}

	applyEnvOverlay(&cfg)

	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// applyEnvOverlay applies the auth loader's environment variables from
// spec.md §6 ("Environment variables (auth loader)"): MCP_AUTH_PROVIDER,
// MCP_AUTH_AUDIENCE, MCP_AUTH_RESOURCE, MCP_AUTH_DOMAIN, MCP_AUTH_ISSUER,
// MCP_AUTH_JWKS_URI, MCP_AUTH_SCOPES (space-separated).
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("MCP_AUTH_PROVIDER"); v != "" {
		cfg.Auth.Provider = v
	}
	if v := os.Getenv("MCP_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("MCP_AUTH_RESOURCE"); v != "" {
		cfg.Auth.Resource = v
	}
	if v := os.Getenv("MCP_AUTH_DOMAIN"); v != "" {
		cfg.Auth.Domain = v
	}
	if v := os.Getenv("MCP_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("MCP_AUTH_JWKS_URI"); v != "" {
		cfg.Auth.JWKSURI = v
	}
	if v := os.Getenv("MCP_AUTH_SCOPES"); v != "" {
		cfg.Auth.ScopesSupported = strings.Fields(v)
	}
	if v := os.Getenv("MCP_AUTH_API_KEYS"); v != "" {
		cfg.Auth.APIKeys = strings.Fields(v)
	}

	if v := os.Getenv("MCP_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("MCP_QUEUE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxConcurrent = n
		}
	}
	if v := os.Getenv("MCP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.ServerListen != nil {
		cfg.Server.Listen = *o.ServerListen
	}
	if o.ServerMCPPath != nil {
		cfg.Server.MCPPath = *o.ServerMCPPath
	}
}
