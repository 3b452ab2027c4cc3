package pipeline

import (
	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/queue"
	"github.com/casys-ai/mcpserver/internal/ratelimit"
	"github.com/casys-ai/mcpserver/internal/validator"
)

// Config assembles the optional pieces BuildDefault wires into the fixed
// pipeline order. Every field except Queue may be nil/zero, in which case
// that layer is omitted entirely.
type Config struct {
	RateLimiter     *ratelimit.Limiter
	RateLimitMode   RateLimitMode
	RateLimitKeyFn  KeyFunc
	AuthProvider    auth.Provider
	UserMiddlewares []Middleware
	ScopeChecker    *auth.ScopeChecker
	Validator       *validator.Validator
	Queue           *queue.Queue // required: backpressure always runs
}

// BuildDefault composes a Runner in the one order spec.md §4.E fixes:
// rate-limit (if configured) -> auth (if a provider is present) -> user
// middlewares (in registration order) -> scope-check (if any tool declares
// required scopes) -> validation (if a validator is present) ->
// backpressure (always). This has no parameter that could reorder the
// chain — reordering it is a breaking change, not a runtime option.
func BuildDefault(handler HandlerFunc, cfg Config) *Runner {
	var chain []Middleware

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimitMiddleware(cfg.RateLimiter, cfg.RateLimitMode, cfg.RateLimitKeyFn))
	}
	if cfg.AuthProvider != nil {
		chain = append(chain, AuthMiddleware(cfg.AuthProvider))
	}
	chain = append(chain, cfg.UserMiddlewares...)
	if cfg.ScopeChecker != nil {
		chain = append(chain, ScopeCheckMiddleware(cfg.ScopeChecker))
	}
	if cfg.Validator != nil {
		chain = append(chain, ValidationMiddleware(cfg.Validator))
	}
	chain = append(chain, BackpressureMiddleware(cfg.Queue))

	return Build(handler, chain...)
}
