// Package httpmcp implements the streamable-HTTP MCP transport: a single
// /mcp (+ / alias) endpoint serving JSON-RPC over POST and an SSE stream
// over GET, plus /health, /metrics, and the RFC 9728 protected-resource
// metadata endpoint.
package httpmcp

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/config"
	"github.com/casys-ai/mcpserver/internal/observability"
	"github.com/casys-ai/mcpserver/internal/pipeline"
	"github.com/casys-ai/mcpserver/internal/protocol"
	"github.com/casys-ai/mcpserver/internal/queue"
	"github.com/casys-ai/mcpserver/internal/ratelimit"
	"github.com/casys-ai/mcpserver/internal/registry"
	"github.com/casys-ai/mcpserver/internal/validator"
)

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string
	Version string
}

// ClientIPExtractor derives a rate-limit key from a request; the default
// resolves the client IP per spec.md §6's resolution order.
type ClientIPExtractor func(r *http.Request) string

// Server is one streamable-HTTP MCP server instance. Each Server owns its
// own tracer handle and rate limiters; running two in one process (e.g.
// in tests) never shares state.
type Server struct {
	cfg        config.Config
	registry   *registry.Registry
	authProv   auth.Provider
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	log        zerolog.Logger
	serverInfo ServerInfo

	runner *pipeline.Runner

	ipExtractor ClientIPExtractor
	ipLimiter   *ratelimit.Limiter
	initLimiter *ratelimit.Limiter

	mu         sync.Mutex
	sessions   map[string]*Session
	sseClients map[string][]*SSEClient
	nextEvent  atomic.Int64

	mux        *http.ServeMux
	httpServer *http.Server

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}

	shuttingDown atomic.Bool
}

// New builds a Server wired from cfg. customRoutes are registered before
// the generic "/" handler so operator-supplied routes can never be
// shadowed by it.
func New(cfg config.Config, reg *registry.Registry, authProv auth.Provider, metrics *observability.Metrics, tracer *observability.Tracer, log zerolog.Logger, info ServerInfo, customRoutes map[string]http.Handler) *Server {
	q := queue.New(cfg.Queue.MaxConcurrent, cfg.Queue.StrategyValue(), queue.WithSleepInterval(time.Duration(cfg.Queue.SleepIntervalMs)*time.Millisecond))
	rl := ratelimit.New(cfg.RateLimit.MaxRequests, int64(cfg.RateLimit.WindowMs))
	val := validator.New()
	for _, t := range reg.ListTools() {
		if err := val.Compile(t.Name, t.InputSchema); err != nil {
			log.Warn().Err(err).Str("tool", t.Name).Msg("failed to compile tool input schema; calls will skip validation")
		}
	}

	pcfg := pipeline.Config{
		RateLimiter:    rl,
		RateLimitMode:  rateLimitMode(cfg.RateLimit.Mode),
		RateLimitKeyFn: func(toolName string, args any) string { return toolName },
		AuthProvider:   authProv,
		ScopeChecker:   auth.NewScopeChecker(reg.RequiredScopesByTool()),
		Validator:      val,
		Queue:          q,
	}

	s := &Server{
		cfg:         cfg,
		registry:    reg,
		authProv:    authProv,
		metrics:     metrics,
		tracer:      tracer,
		log:         log,
		serverInfo:  info,
		ipExtractor: ResolveClientIP,
		ipLimiter:   ratelimit.New(cfg.RateLimit.IPMaxRequests, int64(cfg.RateLimit.IPWindowMs)),
		// Per-process initialize limiter: one instance per *Server, so
		// operators running several backend processes behind a load
		// balancer get a per-process limit, not a global one.
		initLimiter: ratelimit.New(10, 60_000),
		sessions:    make(map[string]*Session),
		sseClients:  make(map[string][]*SSEClient),
	}

	s.runner = pipeline.BuildDefault(s.dispatchToolCall, pcfg)

	mux := http.NewServeMux()
	for path, h := range customRoutes {
		mux.Handle(path, h)
	}
	mux.HandleFunc(protocol.PathHealth, s.handleHealth)
	if metrics != nil {
		mux.Handle(protocol.PathMetrics, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc(protocol.PathProtectedResourceMetadata, s.handleProtectedResourceMetadata)
	mux.HandleFunc(protocol.PathMCP, s.withCORS(s.handleMCP))
	mux.HandleFunc("/", s.withCORS(s.handleMCP))
	s.mux = mux

	return s
}

func rateLimitMode(m string) pipeline.RateLimitMode {
	if m == "wait" {
		return pipeline.RateLimitWait
	}
	return pipeline.RateLimitReject
}

// Start begins serving and the session reaper. It blocks until the
// listener stops (on Shutdown or a fatal accept error).
func (s *Server) Start(ctx context.Context) error {
	reaperCtx, cancel := context.WithCancel(ctx)
	s.reaperCancel = cancel
	s.reaperDone = make(chan struct{})
	go s.runSessionReaper(reaperCtx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: s.mux,
	}

	if s.cfg.Server.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown performs the exact ordering spec.md §4.G requires: cancel the
// session reaper, cancel pending sampling requests (handled by cancelling
// ctx upstream of any sampling collaborator, out of this package's
// scope), close every SSE client, stop the HTTP listener, then return.
// Closing SSE clients before stopping the listener is required — doing
// it after would deadlock the drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	if s.reaperCancel != nil {
		s.reaperCancel()
	}

	s.closeAllSSEClients()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) closeAllSSEClients() {
	s.mu.Lock()
	clients := s.sseClients
	s.sseClients = make(map[string][]*SSEClient)
	s.mu.Unlock()

	for _, list := range clients {
		for _, c := range list {
			close(c.send)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","server":"` + s.serverInfo.Name + `","version":"` + s.serverInfo.Version + `"}`))
}
