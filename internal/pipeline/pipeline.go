package pipeline

import (
	"context"
	"net/http"

	"github.com/casys-ai/mcpserver/internal/auth"
)

// ContentBlock is one element of a pre-formatted MCP tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is a pre-formatted MCP result that passes through the
// transport layer unchanged.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	Meta    map[string]any `json:"_meta,omitempty"`
}

// HandlerResult is the explicit sum type spec.md §9 calls for on handler
// return: either a free-form Value (serialized as a text block by the
// transport) or a Preformatted result that passes through unchanged.
// Exactly one field is populated.
type HandlerResult struct {
	Value        any
	Preformatted *CallToolResult
}

// InvocationContext is the per-request value threaded through the
// pipeline. AuthInfo, once set by the auth middleware, must be treated as
// frozen by every middleware downstream of it.
type InvocationContext struct {
	ToolName            string
	Args                any
	Request             *http.Request // nil on the stdio transport
	SessionID           string
	AuthInfo            *auth.AuthInfo
	ResourceMetadataURL string

	// Extra holds pipeline-extension values keyed by middleware-chosen
	// names; core middlewares never read or write it.
	Extra map[string]any
}

// HandlerFunc invokes a registered tool or resource handler.
type HandlerFunc func(ctx context.Context, ic *InvocationContext) (*HandlerResult, error)

// Next advances the pipeline to the following middleware (or the handler,
// if called by the last middleware in the chain).
type Next func(ctx context.Context, ic *InvocationContext) (*HandlerResult, error)

// Middleware wraps Next, free to short-circuit by not calling it, enrich ic
// for downstream middlewares, or wrap next() in pre/post logic.
type Middleware func(ctx context.Context, ic *InvocationContext, next Next) (*HandlerResult, error)

// Runner is an ordered, built middleware chain around one handler.
type Runner struct {
	middlewares []Middleware
	handler     HandlerFunc
}

// Build composes middlewares (in the given order) around handler. Changing
// their order is a breaking change to callers that rely on Build, so
// higher-level callers should prefer BuildDefault, which fixes the order
// spec.md §4.E mandates.
func Build(handler HandlerFunc, middlewares ...Middleware) *Runner {
	return &Runner{middlewares: middlewares, handler: handler}
}

// Invoke runs the full chain for one call. Each composed Next closure is
// single-shot: calling the same Next a second time — whether that's the
// final one reaching the handler or an intermediate one — is a
// HandlerError, guarding against a buggy middleware double-invoking the
// pipeline.
func (r *Runner) Invoke(ctx context.Context, ic *InvocationContext) (*HandlerResult, error) {
	n := len(r.middlewares)
	called := make([]bool, n+1)

	var step func(i int) Next
	step = func(i int) Next {
		return func(ctx context.Context, ic *InvocationContext) (*HandlerResult, error) {
			if called[i] {
				return nil, NewError(KindHandlerError, "pipeline: next() invoked more than once")
			}
			called[i] = true
			if i == n {
				return r.handler(ctx, ic)
			}
			return r.middlewares[i](ctx, ic, step(i+1))
		}
	}
	return step(0)(ctx, ic)
}
