package httpmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/config"
	"github.com/casys-ai/mcpserver/internal/pipeline"
	"github.com/casys-ai/mcpserver/internal/protocol"
	"github.com/casys-ai/mcpserver/internal/registry"
)

func echoTool() registry.Tool {
	return registry.Tool{
		Name:        "echo",
		Description: "echoes its input back as text",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
		Handler: func(ctx context.Context, ic *pipeline.InvocationContext) (*pipeline.HandlerResult, error) {
			args, _ := ic.Args.(map[string]any)
			return &pipeline.HandlerResult{Value: args["msg"]}, nil
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	reg := registry.New(registry.WithLogger(zerolog.Nop()))
	require.NoError(t, reg.RegisterTool(echoTool()))
	reg.Start()

	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	if mutate != nil {
		mutate(&cfg)
	}

	return New(cfg, reg, nil, nil, nil, zerolog.Nop(), ServerInfo{Name: "test", Version: "0.0.0-test"}, nil)
}

func rpcBody(method string, id, params any) []byte {
	req := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		req["id"] = id
	}
	if params != nil {
		req["params"] = params
	}
	b, _ := json.Marshal(req)
	return b
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestInitialize_AssignsSessionIDAndCapabilities(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("initialize", float64(1), map[string]any{})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
}

func TestToolsCall_EchoRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", float64(2), map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"msg": "hello"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	resultBytes, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result pipeline.CallToolResult
	require.NoError(t, json.Unmarshal(resultBytes, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello", result.Content[0].Text)
}

func TestToolsCall_UnknownToolReturnsNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", float64(3), map[string]any{"name": "nonexistent"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestToolsCall_UnknownSessionReturns404AndNeverReachesHandler(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", float64(30), map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"msg": "hello"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-does-not-exist")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrCodeSessionNotFound, resp.Error.Code)
	assert.Empty(t, s.sessions, "an unknown session id must never create or touch a session entry")
}

func TestToolsList_UnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(31), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-does-not-exist")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResourcesRead_UnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("resources/read", float64(32), map[string]any{"uri": "file:///nonexistent"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-does-not-exist")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResourcesRead_InjectsCSPIntoHTMLContent(t *testing.T) {
	reg := registry.New(registry.WithLogger(zerolog.Nop()))
	require.NoError(t, reg.RegisterTool(echoTool()))
	require.NoError(t, reg.RegisterResources(registry.Resource{
		URI:      "ui:///widget",
		Name:     "widget",
		MimeType: "text/html",
		Handler: func(ic *pipeline.InvocationContext, parsed *url.URL) (*registry.ResourceReadResult, error) {
			return &registry.ResourceReadResult{URI: "ui:///widget", MimeType: "text/html", Text: "<html><head></head><body>hi</body></html>"}, nil
		},
	}))
	reg.Start()

	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	cfg.Server.ResourceCSP = "default-src 'self'"
	s := New(cfg, reg, nil, nil, nil, zerolog.Nop(), ServerInfo{Name: "test", Version: "0.0.0-test"}, nil)
	s.sessions["sess-1"] = &Session{ID: "sess-1", CreatedAt: time.Now(), LastActivity: time.Now()}

	rec := httptest.NewRecorder()
	body := rpcBody("resources/read", float64(40), map[string]any{"uri": "ui:///widget"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-1")

	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Content-Security-Policy")
	assert.Contains(t, rec.Body.String(), "default-src")
}

func TestToolsCall_KnownSessionProceeds(t *testing.T) {
	s := newTestServer(t, nil)
	s.sessions["sess-1"] = &Session{ID: "sess-1", CreatedAt: time.Now(), LastActivity: time.Now()}

	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", float64(33), map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"msg": "hello"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-1")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToolsCall_ValidationFailureRejectsMissingRequiredField(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", float64(4), map[string]any{
		"name":      "echo",
		"arguments": map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMCP_RejectsDisallowedMethod(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func testInt64Ptr(v int64) *int64 {
	return &v
}

func TestHandlePost_RejectsOversizedBody(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.MaxBodyBytes = testInt64Ptr(16)
	})
	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(5), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.ContentLength = int64(len(body))

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlePost_NilMaxBodyBytesDisablesCheck(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.MaxBodyBytes = nil
	})
	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(7), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.ContentLength = int64(len(body))

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePost_ZeroMaxBodyBytesRejectsEvenEmptyBody(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.MaxBodyBytes = testInt64Ptr(0)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.ContentLength = 0

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlePost_MalformedJSONReturnsParseError(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestToolsList_ReturnsRegisteredTool(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(6), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"echo"`)
}

func TestNotification_GetsAccepted(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	body := rpcBody(protocol.MethodNotificationsInitialized, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestNotification_OfKnownMethodNeverReachesHandler(t *testing.T) {
	s := newTestServer(t, nil)
	s.sessions["sess-1"] = &Session{ID: "sess-1", CreatedAt: time.Now(), LastActivity: time.Now()}

	rec := httptest.NewRecorder()
	body := rpcBody("tools/call", nil, map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"msg": "hello"},
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-1")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestToolsList_MissingBearerSetsWWWAuthenticateAndResourceMetadata(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {})
	s.authProv = auth.NewAPIKeyProvider("https://api.example.com", []auth.APIKey{
		{Key: "good-key", Label: "svc", Scopes: []string{"read"}},
	})
	s.sessions["sess-1"] = &Session{ID: "sess-1", CreatedAt: time.Now(), LastActivity: time.Now()}

	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(50), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-1")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, "Bearer")
	assert.Contains(t, challenge, `resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`)
	assert.NotContains(t, challenge, "error=")
}

func TestToolsList_InvalidBearerSetsInvalidTokenChallenge(t *testing.T) {
	s := newTestServer(t, nil)
	s.authProv = auth.NewAPIKeyProvider("https://api.example.com", []auth.APIKey{
		{Key: "good-key", Label: "svc", Scopes: []string{"read"}},
	})
	s.sessions["sess-1"] = &Session{ID: "sess-1", CreatedAt: time.Now(), LastActivity: time.Now()}

	rec := httptest.NewRecorder()
	body := rpcBody("tools/list", float64(51), nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set(protocol.HeaderSessionID, "sess-1")
	req.Header.Set("Authorization", "Bearer wrong-key")

	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, `error="invalid_token"`)
	assert.Contains(t, challenge, "error_description=")
	assert.Contains(t, challenge, `resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`)
}

func TestShutdown_ClosesSSEClientsAndStopsServer(t *testing.T) {
	s := newTestServer(t, nil)
	s.sseClients["anonymous"] = []*SSEClient{newSSEClient("c1", "")}

	err := s.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.sseClients)
}
