// Package protocol holds the wire-level constants shared by every
// transport: JSON-RPC 2.0 error codes, MCP method names, and the HTTP
// header names the streamable-HTTP transport reads and writes.
package protocol

// JSON-RPC 2.0 standard error codes, plus the MCP-specific range
// (-32000 to -32099) used for auth/capacity/session failures.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeSessionNotFound = -32001
	ErrCodeServerError     = -32000
)

// MCP JSON-RPC method names.
const (
	MethodInitialize               = "initialize"
	MethodNotificationsInitialized = "notifications/initialized"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodResourcesList            = "resources/list"
	MethodResourcesRead            = "resources/read"
)

// HTTP header and path conventions for the streamable-HTTP transport.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "mcp-protocol-version"
	HeaderLastEventID     = "last-event-id"

	PathMCP                       = "/mcp"
	PathHealth                    = "/health"
	PathMetrics                   = "/metrics"
	PathProtectedResourceMetadata = "/.well-known/oauth-protected-resource"

	DefaultListenAddr = "127.0.0.1:8443"
)

// ProtocolVersion is the MCP protocol version this server implements.
const ProtocolVersion = "2025-06-18"
