// Package stdio implements the line-delimited JSON-RPC adapter: one
// JSON-RPC message per line on stdin, one response or notification per
// line on stdout. It delegates every tools/call to the same
// pipeline.Runner the HTTP transport uses, with Request and SessionID
// left unset so the auth middleware short-circuits (no bearer token
// exists on a local line-oriented transport).
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/casys-ai/mcpserver/internal/pipeline"
	"github.com/casys-ai/mcpserver/internal/protocol"
	"github.com/casys-ai/mcpserver/internal/registry"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func (r rpcRequest) isNotification() bool { return len(r.ID) == 0 }

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any         `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Adapter runs the line-oriented JSON-RPC loop over in/out.
type Adapter struct {
	registry *registry.Registry
	runner   *pipeline.Runner
	log      zerolog.Logger

	out   io.Writer
	outMu sync.Mutex
}

// New builds an Adapter. runner should generally be built with
// BuildDefault without a rate limiter/auth provider configured for scopes
// that don't apply locally — callers running one pipeline across both
// transports get auth/scope skipped automatically here since ic.Request
// stays nil.
func New(reg *registry.Registry, runner *pipeline.Runner, out io.Writer, log zerolog.Logger) *Adapter {
	return &Adapter{registry: reg, runner: runner, out: out, log: log}
}

// Run reads line-delimited JSON-RPC from in until EOF or ctx is
// cancelled, writing responses/notifications to the adapter's out.
func (a *Adapter) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		a.handleLine(ctx, line)
	}
	return scanner.Err()
}

func (a *Adapter) handleLine(ctx context.Context, line []byte) {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		a.log.Warn().Err(err).Msg("discarding malformed stdio line")
		a.writeError(nil, protocol.ErrCodeParseError, "malformed JSON")
		return
	}
	if req.Method == "" {
		a.writeError(req.ID, protocol.ErrCodeInvalidRequest, "missing method")
		return
	}

	// A notification (no id) never gets a reply line, regardless of
	// which method it names — mirrors the HTTP transport's bare-202
	// rule for the same JSON-RPC contract. Must run before dispatch, not
	// just in the unknown-method fallback.
	if req.isNotification() {
		return
	}

	switch req.Method {
	case protocol.MethodInitialize:
		a.handleInitialize(req)
	case protocol.MethodToolsCall:
		a.handleToolsCall(ctx, req)
	case protocol.MethodToolsList:
		a.handleToolsList(req)
	case protocol.MethodResourcesList:
		a.handleResourcesList(req)
	case protocol.MethodResourcesRead:
		a.handleResourcesRead(req)
	default:
		a.writeError(req.ID, protocol.ErrCodeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (a *Adapter) handleInitialize(req rpcRequest) {
	capabilities := map[string]any{"tools": map[string]any{}}
	if a.registry.HasResourcesCapability() {
		capabilities["resources"] = map[string]any{}
	}
	a.writeResult(req.ID, map[string]any{
		"protocolVersion": protocol.ProtocolVersion,
		"capabilities":    capabilities,
		"serverInfo":      map[string]any{"name": "mcpserver", "version": protocol.ProtocolVersion},
	})
}

func (a *Adapter) handleToolsCall(ctx context.Context, req rpcRequest) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		a.writeError(req.ID, protocol.ErrCodeInvalidParams, "missing or malformed tool name")
		return
	}
	var args any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			a.writeError(req.ID, protocol.ErrCodeInvalidParams, "malformed arguments")
			return
		}
	}

	ic := &pipeline.InvocationContext{ToolName: params.Name, Args: args}
	result, err := a.runner.Invoke(ctx, ic)
	if err != nil {
		if pe, ok := err.(*pipeline.Error); ok && pe.Kind == pipeline.KindHandlerError {
			a.log.Error().Err(err).Str("tool", params.Name).Msg("tool handler failed")
		}
		a.writePipelineError(req.ID, err)
		return
	}
	callResult, err := registry.CoerceResult(result)
	if err != nil {
		a.writeError(req.ID, protocol.ErrCodeInternalError, "failed to encode tool result")
		return
	}
	a.writeResult(req.ID, callResult)
}

func (a *Adapter) handleToolsList(req rpcRequest) {
	tools := a.registry.ListTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": json.RawMessage(t.InputSchema),
		})
	}
	a.writeResult(req.ID, map[string]any{"tools": out})
}

func (a *Adapter) handleResourcesList(req rpcRequest) {
	resources := a.registry.ListResources()
	out := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		out = append(out, map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		})
	}
	a.writeResult(req.ID, map[string]any{"resources": out})
}

func (a *Adapter) handleResourcesRead(req rpcRequest) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		a.writeError(req.ID, protocol.ErrCodeInvalidParams, "missing or malformed uri")
		return
	}
	res, ok := a.registry.Resource(params.URI)
	if !ok {
		a.writeError(req.ID, protocol.ErrCodeInvalidParams, "resource not found: "+params.URI)
		return
	}
	parsedURI, err := url.Parse(params.URI)
	if err != nil {
		a.writeError(req.ID, protocol.ErrCodeInvalidParams, "malformed resource uri")
		return
	}
	result, err := res.Handler(&pipeline.InvocationContext{}, parsedURI)
	if err != nil {
		a.writeError(req.ID, protocol.ErrCodeInternalError, err.Error())
		return
	}
	a.writeResult(req.ID, map[string]any{"contents": []any{result}})
}

func (a *Adapter) writePipelineError(id json.RawMessage, err error) {
	pe, ok := err.(*pipeline.Error)
	if !ok {
		a.writeError(id, protocol.ErrCodeInternalError, err.Error())
		return
	}
	a.writeError(id, rpcCodeForKind(pe.Kind), pe.Message)
}

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

func (a *Adapter) writeResult(id json.RawMessage, result any) {
	a.writeLine(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (a *Adapter) writeError(id json.RawMessage, code int, message string) {
	a.writeLine(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

// SendNotification writes a JSON-RPC notification (no id) to the output
// stream, e.g. for a tool-initiated progress update.
func (a *Adapter) SendNotification(method string, params any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return a.writeLine(struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: paramsJSON})
}

func (a *Adapter) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if _, err := a.out.Write(data); err != nil {
		return err
	}
	_, err = a.out.Write([]byte("\n"))
	return err
}
