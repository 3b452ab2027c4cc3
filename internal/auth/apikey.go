package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
)

// APIKey associates a configured opaque key with the scopes it grants and a
// label used as the resulting AuthInfo.Subject.
type APIKey struct {
	Key    string
	Label  string
	Scopes []string
}

// APIKeyProvider is a second Provider implementation for opaque
// pre-shared bearer tokens, verified by constant-time comparison rather
// than JWT parsing (crypto/subtle.ConstantTimeCompare).
type APIKeyProvider struct {
	keys     []APIKey
	resource string
}

// NewAPIKeyProvider builds a provider over a fixed set of keys.
func NewAPIKeyProvider(resource string, keys []APIKey) *APIKeyProvider {
	return &APIKeyProvider{keys: keys, resource: resource}
}

// VerifyToken implements Provider, comparing token against every
// configured key in constant time.
func (p *APIKeyProvider) VerifyToken(_ context.Context, token string) (*AuthInfo, error) {
	tokenBytes := []byte(token)
	for _, k := range p.keys {
		if subtle.ConstantTimeCompare(tokenBytes, []byte(k.Key)) == 1 {
			return &AuthInfo{
				Subject: k.Label,
				Scopes:  k.Scopes,
				Claims:  map[string]any{},
			}, nil
		}
	}
	return nil, fmt.Errorf("auth: unrecognized API key")
}

// ResourceMetadata implements Provider.
func (p *APIKeyProvider) ResourceMetadata() ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               p.resource,
		AuthorizationServers:   nil,
		BearerMethodsSupported: []string{"header"},
	}
}

// MetadataURL returns the RFC 9728 discovery URL for this provider's
// configured resource.
func (p *APIKeyProvider) MetadataURL() string {
	return resourceMetadataURL(p.resource)
}
