package pipeline

import (
	"context"
	"fmt"

	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/queue"
	"github.com/casys-ai/mcpserver/internal/ratelimit"
	"github.com/casys-ai/mcpserver/internal/validator"
)

// RateLimitMode selects how the rate-limit middleware behaves on breach.
type RateLimitMode int

const (
	// RateLimitReject fails fast with KindRateLimited.
	RateLimitReject RateLimitMode = iota
	// RateLimitWait blocks on WaitForSlot until a slot frees up.
	RateLimitWait
)

// KeyFunc derives a rate-limit / IP-limit key from the tool being called
// and its arguments. A nil KeyFunc defaults to the literal key "default".
type KeyFunc func(toolName string, args any) string

// RateLimitMiddleware builds the rate-limit layer. It must run first in
// the fixed order.
func RateLimitMiddleware(limiter *ratelimit.Limiter, mode RateLimitMode, keyFn KeyFunc) Middleware {
	if keyFn == nil {
		keyFn = func(string, any) string { return "default" }
	}
	return func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		key := keyFn(ic.ToolName, ic.Args)
		switch mode {
		case RateLimitWait:
			if err := limiter.WaitForSlot(ctx, key); err != nil {
				return nil, err
			}
		default:
			if !limiter.CheckLimit(key) {
				wait := limiter.GetTimeUntilSlot(key)
				secs := int(wait.Seconds())
				if secs < 1 {
					secs = 1
				}
				return nil, &Error{
					Kind:              KindRateLimited,
					Message:           fmt.Sprintf("Retry after %ds", secs),
					RetryAfterSeconds: secs,
				}
			}
		}
		return next(ctx, ic)
	}
}

// AuthMiddleware builds the auth layer. Skips entirely when ic.Request is
// nil (stdio transport). Otherwise extracts the bearer token, verifies it,
// and sets ic.AuthInfo / ic.ResourceMetadataURL, which downstream
// middlewares must treat as frozen (nothing enforces this).
func AuthMiddleware(provider auth.Provider) Middleware {
	return func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		if ic.Request == nil {
			return next(ctx, ic)
		}

		token, ok := auth.BearerExtract(ic.Request.Header.Get("Authorization"))
		if !ok {
			return nil, &Error{
				Kind:                KindAuthMissingToken,
				Message:             "missing bearer token",
				ResourceMetadataURL: metadataURL(provider),
			}
		}

		info, err := provider.VerifyToken(ctx, token)
		if err != nil || info == nil {
			return nil, &Error{
				Kind:                KindAuthInvalidToken,
				Message:             "invalid bearer token",
				ResourceMetadataURL: metadataURL(provider),
			}
		}

		ic.AuthInfo = info
		ic.ResourceMetadataURL = metadataURL(provider)
		return next(ctx, ic)
	}
}

func metadataURL(provider auth.Provider) string {
	if provider == nil {
		return ""
	}
	meta := provider.ResourceMetadata()
	r := meta.Resource
	for len(r) > 0 && r[len(r)-1] == '/' {
		r = r[:len(r)-1]
	}
	return r + "/.well-known/oauth-protected-resource"
}

// ScopeCheckMiddleware builds the scope-enforcement layer.
func ScopeCheckMiddleware(checker *auth.ScopeChecker) Middleware {
	return func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		if err := checker.Check(ic.ToolName, ic.AuthInfo, ic.Request != nil); err != nil {
			switch e := err.(type) {
			case *auth.ErrInsufficientScope:
				return nil, &Error{Kind: KindInsufficientScope, Message: e.Error(), MissingScopes: e.MissingScopes}
			default:
				return nil, err
			}
		}
		return next(ctx, ic)
	}
}

// ValidationMiddleware builds the schema-validation layer.
func ValidationMiddleware(v *validator.Validator) Middleware {
	return func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error) {
		if err := v.ValidateOrThrow(ic.ToolName, ic.Args); err != nil {
			return nil, &Error{Kind: KindValidationFailed, Message: err.Error()}
		}
		return next(ctx, ic)
	}
}

// BackpressureMiddleware builds the always-present final layer: acquire a
// queue slot, always release it on every exit path (including a panic
// recovered further down the handler), then invoke the handler.
func BackpressureMiddleware(q *queue.Queue) Middleware {
	return func(ctx context.Context, ic *InvocationContext, next Next) (result *HandlerResult, err error) {
		if acqErr := q.Acquire(ctx); acqErr != nil {
			return nil, &Error{Kind: KindCapacityExceeded, Message: acqErr.Error()}
		}
		defer q.Release()
		return next(ctx, ic)
	}
}
