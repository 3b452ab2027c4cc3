package httpmcp

import (
	"encoding/json"

	"github.com/casys-ai/mcpserver/internal/pipeline"
	"github.com/casys-ai/mcpserver/internal/protocol"
)

// rpcRequest is a JSON-RPC 2.0 request/notification. ID is nil for a
// notification; callers must check for its literal presence, not just a
// zero value, which json.RawMessage(nil) does correctly.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any         `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func newResultResponse(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, code int, message string, data any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

// httpStatusForKind maps a pipeline error Kind onto the HTTP status the
// transport returns, per spec.md §7's taxonomy table.
func httpStatusForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.KindCapacityExceeded:
		// spec.md §7: CapacityExceeded carries JSON-RPC -32000 in the
		// body but reports HTTP 200, unlike every other error kind here.
		return 200
	case pipeline.KindRateLimited:
		return 429
	case pipeline.KindPayloadTooLarge:
		return 413
	case pipeline.KindAuthMissingToken, pipeline.KindAuthInvalidToken:
		return 401
	case pipeline.KindInsufficientScope:
		return 403
	case pipeline.KindValidationFailed:
		return 400
	case pipeline.KindUnknownTool, pipeline.KindResourceNotFound:
		return 404
	case pipeline.KindSessionNotFound:
		return 404
	case pipeline.KindSessionExhaustion:
		return 503
	case pipeline.KindHandlerError:
		return 500
	default:
		return 500
	}
}

// rpcCodeForKind maps a pipeline error Kind onto a JSON-RPC error code.
func rpcCodeForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.KindValidationFailed, pipeline.KindUnknownTool, pipeline.KindResourceNotFound:
		return protocol.ErrCodeInvalidParams
	case pipeline.KindSessionNotFound:
		return protocol.ErrCodeSessionNotFound
	case pipeline.KindHandlerError:
		return protocol.ErrCodeInternalError
	default:
		return protocol.ErrCodeServerError
	}
}

// rpcErrorData builds the optional data object attached to rate-limit /
// scope errors so clients can self-correct without re-parsing Message.
func rpcErrorData(pe *pipeline.Error) any {
	switch pe.Kind {
	case pipeline.KindRateLimited, pipeline.KindCapacityExceeded:
		if pe.RetryAfterSeconds > 0 {
			return map[string]any{"retryAfterSeconds": pe.RetryAfterSeconds}
		}
	case pipeline.KindInsufficientScope:
		if len(pe.MissingScopes) > 0 {
			return map[string]any{"missingScopes": pe.MissingScopes}
		}
	case pipeline.KindAuthMissingToken, pipeline.KindAuthInvalidToken:
		if pe.ResourceMetadataURL != "" {
			return map[string]any{"resourceMetadataUrl": pe.ResourceMetadataURL}
		}
	}
	return nil
}
