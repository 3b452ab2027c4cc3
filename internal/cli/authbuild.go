package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/config"
)

// buildAuthProvider constructs the configured auth.Provider, or nil for
// provider "none" (no auth enforced; the HTTP transport and pipeline
// both treat a nil provider as "skip the auth middleware entirely").
func buildAuthProvider(ctx context.Context, a config.Auth, log zerolog.Logger) (auth.Provider, error) {
	switch a.Provider {
	case "", "none":
		return nil, nil
	case "apikey":
		keys := make([]auth.APIKey, 0, len(a.APIKeys))
		for _, k := range a.APIKeys {
			keys = append(keys, auth.APIKey{Key: k})
		}
		return auth.NewAPIKeyProvider(a.Resource, keys), nil
	case "auth0":
		return auth.NewAuth0Provider(ctx, auth.Auth0PresetOptions{
			PresetOptions: auth.PresetOptions{
				Audience:        a.Audience,
				Resource:        a.Resource,
				ScopesSupported: a.ScopesSupported,
			},
			Domain: a.Domain,
		})
	case "oidc":
		return auth.NewOIDCProvider(ctx, auth.OIDCPresetOptions{
			PresetOptions: auth.PresetOptions{
				Audience:        a.Audience,
				Resource:        a.Resource,
				ScopesSupported: a.ScopesSupported,
			},
			Issuer:  a.Issuer,
			JWKSURI: a.JWKSURI,
		})
	case "google":
		return auth.NewGoogleProvider(ctx, auth.PresetOptions{
			Audience:        a.Audience,
			Resource:        a.Resource,
			ScopesSupported: a.ScopesSupported,
		})
	case "github", "github-actions":
		return auth.NewGitHubActionsProvider(ctx, auth.PresetOptions{
			Audience:        a.Audience,
			Resource:        a.Resource,
			ScopesSupported: a.ScopesSupported,
		})
	case "jwt":
		return auth.NewJWTProvider(ctx, auth.Options{
			Issuer:          a.Issuer,
			Audience:        a.Audience,
			Resource:        a.Resource,
			JWKSURI:         a.JWKSURI,
			ScopesSupported: a.ScopesSupported,
			Logger:          log,
		})
	default:
		return nil, fmt.Errorf("unknown auth provider %q", a.Provider)
	}
}
