package config

import (
	"fmt"
	"strings"
)

// Validate checks required fields and enum constraints, returning an
// error suitable for a non-zero exit code with a distinct message per
// spec.md §6's "unknown provider string, missing audience, missing
// resource, missing domain when provider=auth0, missing issuer when
// provider=oidc" list.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("CONFIG_INVALID: nil config")
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return err
	}
	if err := validateEnums(cfg); err != nil {
		return err
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("CONFIG_INVALID: server.listen must not be empty")
	}
	if cfg.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("CONFIG_INVALID: queue.maxConcurrent must be positive, got %d", cfg.Queue.MaxConcurrent)
	}
	if cfg.RateLimit.MaxRequests <= 0 || cfg.RateLimit.WindowMs <= 0 {
		return fmt.Errorf("CONFIG_INVALID: rateLimit.maxRequests and rateLimit.windowMs must be positive")
	}
	if cfg.Session.TTLMinutes <= 0 {
		return fmt.Errorf("CONFIG_INVALID: session.ttlMinutes must be positive")
	}
	return nil
}

func validateAuth(a *Auth) error {
	if a.Provider == "" || a.Provider == "none" {
		return nil
	}
	if !stringIn(a.Provider, AuthProviders) {
		return fmt.Errorf("CONFIG_INVALID: auth.provider=%q; allowed: %s", a.Provider, strings.Join(AuthProviders, ", "))
	}
	if a.Provider == "apikey" {
		return nil
	}
	if a.Audience == "" {
		return fmt.Errorf("CONFIG_INVALID: auth.audience is required when auth.provider=%q", a.Provider)
	}
	if a.Resource == "" {
		return fmt.Errorf("CONFIG_INVALID: auth.resource is required when auth.provider=%q", a.Provider)
	}
	if a.Provider == "auth0" && a.Domain == "" {
		return fmt.Errorf("CONFIG_INVALID: auth.domain is required when auth.provider=auth0")
	}
	if a.Provider == "oidc" && a.Issuer == "" {
		return fmt.Errorf("CONFIG_INVALID: auth.issuer is required when auth.provider=oidc")
	}
	return nil
}

// validateEnums checks constrained string fields against allowed values.
func validateEnums(cfg *Config) error {
	if !stringIn(cfg.Queue.Strategy, QueueStrategies) {
		return fmt.Errorf("CONFIG_INVALID: queue.strategy=%q; allowed: %s", cfg.Queue.Strategy, strings.Join(QueueStrategies, ", "))
	}
	if !stringIn(cfg.RateLimit.Mode, RateLimitModes) {
		return fmt.Errorf("CONFIG_INVALID: rateLimit.mode=%q; allowed: %s", cfg.RateLimit.Mode, strings.Join(RateLimitModes, ", "))
	}
	if !stringIn(cfg.Logging.Format, LogFormats) {
		return fmt.Errorf("CONFIG_INVALID: logging.format=%q; allowed: %s", cfg.Logging.Format, strings.Join(LogFormats, ", "))
	}
	return nil
}
