// Package registry stores tool and resource definitions with atomic
// registration semantics: an insert-only phase before the server starts,
// and an explicit live-mutation API afterward.
package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/casys-ai/mcpserver/internal/pipeline"
)

// Tool is a named server capability invocable as tools/call.
type Tool struct {
	Name           string
	Description    string
	InputSchema    json.RawMessage
	RequiredScopes []string
	Metadata       map[string]any
	Handler        pipeline.HandlerFunc
}

// ResourceReadResult is what a resource handler returns.
type ResourceReadResult struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ResourceHandler reads one resource given its parsed URI.
type ResourceHandler func(ctx *pipeline.InvocationContext, parsed *url.URL) (*ResourceReadResult, error)

// Resource is URI-addressed content returned by resources/read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

// Registry holds the tool and resource maps. Before Start(), Register*
// calls are insert-only (duplicates are errors); after Start(), only
// LiveRegister/Unregister may mutate the tool map.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	resources map[string]Resource
	started   bool

	expectResources bool
	log             zerolog.Logger
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithExpectResources makes HasResourcesCapability report true from
// construction, so the "resources" capability can be advertised during
// initialize before any resource is actually registered. Both transports
// dispatch resources/list and resources/read whether or not it is set.
func WithExpectResources() Option {
	return func(r *Registry) { r.expectResources = true }
}

// WithLogger attaches a logger for registration warnings (e.g. a
// non-"ui:" resource URI scheme).
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New builds an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:     make(map[string]Tool),
		resources: make(map[string]Resource),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start freezes the insert-only registration phase; after this, only
// LiveRegister/Unregister may add or remove tools.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// RegisterTool adds a tool before Start(). Returns an error if called
// after Start() or if the name is already registered.
func (r *Registry) RegisterTool(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("registry: RegisterTool called after Start(); use LiveRegister")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("registry: tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// LiveRegister adds or replaces a tool after Start(). In-flight calls
// admitted before this call complete against the handler snapshot they
// captured at admission time: LiveRegister/Unregister does NOT wait for
// quiescence, by design — see DESIGN.md.
func (r *Registry) LiveRegister(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Unregister removes a tool by name. See LiveRegister's doc comment for
// the in-flight-call contract.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Tool looks up a tool by name, returning a consistent snapshot even
// against concurrent LiveRegister/Unregister calls.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ListTools returns a snapshot of every registered tool.
func (r *Registry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// RequiredScopesByTool snapshots the per-tool required-scopes map, used at
// pipeline-build time to construct an auth.ScopeChecker.
func (r *Registry) RequiredScopesByTool() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.tools))
	for name, t := range r.tools {
		if len(t.RequiredScopes) > 0 {
			out[name] = t.RequiredScopes
		}
	}
	return out
}

// RegisterResources atomically registers a batch of resources: every URI
// must have a handler and none may already exist, or the entire batch is
// rejected and the registry is left untouched.
func (r *Registry) RegisterResources(resources ...Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range resources {
		if res.Handler == nil {
			return fmt.Errorf("registry: resource %q has no handler", res.URI)
		}
		if _, exists := r.resources[res.URI]; exists {
			return fmt.Errorf("registry: resource %q already registered", res.URI)
		}
	}

	for _, res := range resources {
		if !strings.HasPrefix(res.URI, "ui:") {
			r.log.Warn().Str("uri", res.URI).Msg("resource URI scheme is not ui:")
		}
		r.resources[res.URI] = res
	}
	return nil
}

// Resource looks up a resource by URI.
func (r *Registry) Resource(uri string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// ListResources returns a snapshot of every registered resource.
func (r *Registry) ListResources() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

// HasResourcesCapability reports whether the resources capability should
// be advertised: either a resource is already registered, or the registry
// was built with WithExpectResources for early capability negotiation.
func (r *Registry) HasResourcesCapability() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.expectResources || len(r.resources) > 0
}

// CoerceResult converts a pipeline.HandlerResult into the wire-level
// content-block shape for tools/call responses. A Preformatted result
// passes through unchanged; a free-form Value is wrapped as a single text
// block (JSON-encoded unless it is already a string).
//
// This is the one place the framework performs structural sniffing on a
// dynamically-dispatched return value (e.g. from a proxied/remote tool):
// handlers written against pipeline.HandlerResult never need it.
func CoerceResult(res *pipeline.HandlerResult) (*pipeline.CallToolResult, error) {
	if res == nil {
		return &pipeline.CallToolResult{Content: []pipeline.ContentBlock{{Type: "text", Text: ""}}}, nil
	}
	if res.Preformatted != nil {
		return res.Preformatted, nil
	}
	if looksPreformatted(res.Value) {
		return coercePreformattedValue(res.Value)
	}

	text, ok := res.Value.(string)
	if !ok {
		raw, err := json.Marshal(res.Value)
		if err != nil {
			return nil, fmt.Errorf("registry: coercing handler result: %w", err)
		}
		text = string(raw)
	}
	return &pipeline.CallToolResult{Content: []pipeline.ContentBlock{{Type: "text", Text: text}}}, nil
}

// looksPreformatted structurally detects a map shaped like a pre-formatted
// MCP result: a non-empty "content" list whose first element has "type"
// and "text" fields. This is the one external boundary (a dynamically
// dispatched value arriving as `any`, not through pipeline.HandlerResult)
// where structural sniffing is still necessary.
func looksPreformatted(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		return false
	}
	first, ok := content[0].(map[string]any)
	if !ok {
		return false
	}
	_, hasType := first["type"]
	_, hasText := first["text"]
	return hasType && hasText
}

func coercePreformattedValue(v any) (*pipeline.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("registry: coercing pre-formatted result: %w", err)
	}
	var out pipeline.CallToolResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("registry: decoding pre-formatted result: %w", err)
	}
	return &out, nil
}
