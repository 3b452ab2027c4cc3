package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/casys-ai/mcpserver/internal/observability"
)

// jwksKeyfunc is the slice of keyfunc.Keyfunc this package relies on: a
// long-lived JWKS client exposing a jwt.Keyfunc-compatible method, with its
// own internal refresh/caching so verification never fetches the JWKS once
// per call.
type jwksKeyfunc interface {
	Keyfunc(token *jwt.Token) (interface{}, error)
}

// Options configures a JWTProvider.
type Options struct {
	Issuer           string
	Audience         string
	Resource         string
	JWKSURI          string // defaults to Issuer + "/.well-known/jwks.json"
	ScopesSupported  []string
	AuthorizationServers []string // defaults to []string{Issuer}

	Logger  zerolog.Logger
	Tracer  *observability.Tracer
	Metrics *observability.Metrics

	// FetchTimeout bounds the JWKS client's background refresh fetches.
	// context cancellation from an individual VerifyToken call does not
	// propagate into keyfunc's internal refresh goroutine, so this is the
	// one place verification honors a server-level timeout instead.
	FetchTimeout time.Duration
}

// JWTProvider verifies bearer tokens as JWTs against a remote JWKS,
// caching successful verifications keyed by a SHA-256 hash of the token.
type JWTProvider struct {
	opts  Options
	kf    jwksKeyfunc
	cache *tokenCache
}

// NewJWTProvider constructs a JWTProvider and starts its background JWKS
// refresh client immediately.
func NewJWTProvider(ctx context.Context, opts Options) (*JWTProvider, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("auth: issuer is required")
	}
	if opts.Audience == "" {
		return nil, fmt.Errorf("auth: audience is required")
	}
	jwksURI := opts.JWKSURI
	if jwksURI == "" {
		jwksURI = strings.TrimRight(opts.Issuer, "/") + "/.well-known/jwks.json"
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 10 * time.Second
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
	defer cancel()
	kf, err := keyfunc.NewDefaultCtx(fetchCtx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("auth: building JWKS client for %s: %w", jwksURI, err)
	}

	return &JWTProvider{
		opts:  opts,
		kf:    kf,
		cache: newTokenCache(),
	}, nil
}

// VerifyToken implements Provider. See spec.md §4.D for the full lookup
// flow this follows step by step.
func (p *JWTProvider) VerifyToken(ctx context.Context, token string) (*AuthInfo, error) {
	ctx, span := p.opts.Tracer.StartSpan(ctx, "auth.verify")
	defer span.End()

	key := cacheKey(token)
	if info, ok := p.cache.get(key); ok {
		span.AddEvent("auth.cache_hit")
		p.recordEvent("cache_hit")
		return info, nil
	}

	parsed, err := jwt.Parse(token, p.kf.Keyfunc,
		jwt.WithIssuer(p.opts.Issuer),
		jwt.WithAudience(p.opts.Audience),
	)
	if err != nil || !parsed.Valid {
		span.AddEvent("auth.reject")
		p.recordEvent("reject")
		return nil, fmt.Errorf("auth: token verification failed")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		span.AddEvent("auth.reject")
		p.recordEvent("reject")
		return nil, fmt.Errorf("auth: unexpected claims type")
	}

	info := claimsToAuthInfo(claims)

	var ttl time.Duration = DefaultCacheTTL
	if info.ExpiresAt > 0 {
		untilExpiry := time.Until(time.Unix(info.ExpiresAt, 0))
		if untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	p.cache.put(key, info, ttl)

	p.recordEvent("verify")
	return info, nil
}

func (p *JWTProvider) recordEvent(outcome string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.AuthEventsTotal.WithLabelValues(outcome).Inc()
	}
}

// claimsToAuthInfo maps JWT payload claims onto AuthInfo per spec.md §4.D
// step 5.
func claimsToAuthInfo(claims jwt.MapClaims) *AuthInfo {
	info := &AuthInfo{Claims: map[string]any(claims)}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		info.Subject = sub
	} else {
		info.Subject = "unknown"
	}

	if azp, ok := claims["azp"].(string); ok && azp != "" {
		info.ClientID = azp
	} else if cid, ok := claims["client_id"].(string); ok && cid != "" {
		info.ClientID = cid
	}

	info.Scopes = extractScopes(claims)

	if expF, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = int64(expF)
	}

	return info
}

// extractScopes reads "scope" (space-delimited string) or "scp" (array of
// strings), preferring "scope" when both are present. Empty segments are
// filtered out.
func extractScopes(claims jwt.MapClaims) []string {
	if raw, ok := claims["scope"].(string); ok && raw != "" {
		var out []string
		for _, s := range strings.Fields(raw) {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if raw, ok := claims["scp"].([]any); ok {
		var out []string
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ResourceMetadata implements Provider.
func (p *JWTProvider) ResourceMetadata() ProtectedResourceMetadata {
	servers := p.opts.AuthorizationServers
	if len(servers) == 0 {
		servers = []string{p.opts.Issuer}
	}
	return ProtectedResourceMetadata{
		Resource:               p.opts.Resource,
		AuthorizationServers:   servers,
		ScopesSupported:        p.opts.ScopesSupported,
		BearerMethodsSupported: []string{"header"},
	}
}

// MetadataURL returns the RFC 9728 discovery URL for this provider's
// configured resource.
func (p *JWTProvider) MetadataURL() string {
	return resourceMetadataURL(p.opts.Resource)
}

// CacheSize reports the current token cache occupancy. It is not exported
// through /metrics, so the status dashboard does not show it.
func (p *JWTProvider) CacheSize() int {
	return p.cache.size()
}

// PresetOptions is the shared shape for well-known provider presets.
type PresetOptions struct {
	Audience        string
	Resource        string
	ScopesSupported []string
}

// NewGoogleProvider preconfigures issuer/jwksUri for Google-issued tokens.
func NewGoogleProvider(ctx context.Context, preset PresetOptions) (*JWTProvider, error) {
	return NewJWTProvider(ctx, Options{
		Issuer:          "https://accounts.google.com",
		JWKSURI:         "https://www.googleapis.com/oauth2/v3/certs",
		Audience:        preset.Audience,
		Resource:        preset.Resource,
		ScopesSupported: preset.ScopesSupported,
	})
}

// NewGitHubActionsProvider preconfigures issuer/jwksUri for GitHub Actions
// OIDC tokens.
func NewGitHubActionsProvider(ctx context.Context, preset PresetOptions) (*JWTProvider, error) {
	const issuer = "https://token.actions.githubusercontent.com"
	return NewJWTProvider(ctx, Options{
		Issuer:          issuer,
		JWKSURI:         issuer + "/.well-known/jwks",
		Audience:        preset.Audience,
		Resource:        preset.Resource,
		ScopesSupported: preset.ScopesSupported,
	})
}

// Auth0PresetOptions extends PresetOptions with the Auth0 tenant domain.
type Auth0PresetOptions struct {
	PresetOptions
	Domain string
}

// NewAuth0Provider preconfigures issuer = https://{domain}/ and its
// standard jwksUri.
func NewAuth0Provider(ctx context.Context, preset Auth0PresetOptions) (*JWTProvider, error) {
	if preset.Domain == "" {
		return nil, fmt.Errorf("auth: auth0 preset requires a domain")
	}
	issuer := "https://" + preset.Domain + "/"
	return NewJWTProvider(ctx, Options{
		Issuer:          issuer,
		JWKSURI:         issuer + ".well-known/jwks.json",
		Audience:        preset.Audience,
		Resource:        preset.Resource,
		ScopesSupported: preset.ScopesSupported,
	})
}

// OIDCPresetOptions extends PresetOptions with an explicit issuer, required
// for generic OIDC providers that don't follow a fixed hostname shape.
type OIDCPresetOptions struct {
	PresetOptions
	Issuer  string
	JWKSURI string // optional; defaults to Issuer + "/.well-known/jwks.json"
}

// NewOIDCProvider builds a provider for a generic OIDC issuer.
func NewOIDCProvider(ctx context.Context, preset OIDCPresetOptions) (*JWTProvider, error) {
	if preset.Issuer == "" {
		return nil, fmt.Errorf("auth: oidc preset requires an issuer")
	}
	return NewJWTProvider(ctx, Options{
		Issuer:          preset.Issuer,
		JWKSURI:         preset.JWKSURI,
		Audience:        preset.Audience,
		Resource:        preset.Resource,
		ScopesSupported: preset.ScopesSupported,
	})
}
