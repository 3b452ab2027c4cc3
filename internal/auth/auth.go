// Package auth implements bearer-token extraction, JWT/JWKS verification
// with a bounded TTL cache, API-key verification, and per-tool scope
// enforcement.
package auth

import (
	"context"
)

// AuthInfo is produced by a successful Provider.VerifyToken and consumed by
// scope enforcement and user middlewares. Once attached to an invocation
// context it must be treated as frozen by every downstream middleware.
type AuthInfo struct {
	Subject   string
	ClientID  string
	Scopes    []string
	Claims    map[string]any
	ExpiresAt int64 // unix seconds; zero means unset
}

// ProtectedResourceMetadata is the RFC 9728 document shape served at
// /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource              string   `json:"resource"`
	AuthorizationServers  []string `json:"authorization_servers"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// Provider is the capability set every auth backend implements: verify an
// opaque bearer token, and describe itself for RFC 9728 discovery. The JWT
// provider is the default implementation; API-key and other opaque-token
// schemes are separate implementations behind the same interface.
type Provider interface {
	VerifyToken(ctx context.Context, token string) (*AuthInfo, error)
	ResourceMetadata() ProtectedResourceMetadata
}

// BearerExtract returns the token carried by an Authorization header value,
// accepting only a case-sensitive "Bearer " prefix. Returns "", false if the
// header is absent, malformed, or the trimmed token is empty.
func BearerExtract(authorizationHeader string) (string, bool) {
	const prefix = "Bearer "
	if len(authorizationHeader) <= len(prefix) || authorizationHeader[:len(prefix)] != prefix {
		return "", false
	}
	token := trimSpace(authorizationHeader[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// resourceMetadataURL derives the RFC 9728 discovery URL from a configured
// resource by trimming a trailing slash and appending the well-known path.
func resourceMetadataURL(resource string) string {
	r := resource
	for len(r) > 0 && r[len(r)-1] == '/' {
		r = r[:len(r)-1]
	}
	return r + "/.well-known/oauth-protected-resource"
}
