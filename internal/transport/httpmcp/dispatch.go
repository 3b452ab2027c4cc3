package httpmcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/casys-ai/mcpserver/internal/pipeline"
	"github.com/casys-ai/mcpserver/internal/protocol"
	"github.com/casys-ai/mcpserver/internal/registry"
)

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// dispatchToolCall is the pipeline's terminal handler: it looks up the
// named tool and invokes it. Auth, scope, rate-limit and validation have
// already run by the time this executes.
func (s *Server) dispatchToolCall(ctx context.Context, ic *pipeline.InvocationContext) (*pipeline.HandlerResult, error) {
	tool, ok := s.registry.Tool(ic.ToolName)
	if !ok {
		return nil, pipeline.NewError(pipeline.KindUnknownTool, "unknown tool: "+ic.ToolName)
	}
	return tool.Handler(ctx, ic)
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.writeRPCError(w, req.ID, http.StatusBadRequest, protocol.ErrCodeInvalidParams, "missing or malformed tool name")
		return
	}

	var args any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.writeRPCError(w, req.ID, http.StatusBadRequest, protocol.ErrCodeInvalidParams, "malformed arguments")
			return
		}
	}

	sessionID := r.Header.Get(protocol.HeaderSessionID)
	if !s.checkSession(sessionID) {
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "unknown session: "+sessionID)
		return
	}

	ic := &pipeline.InvocationContext{
		ToolName:  params.Name,
		Args:      args,
		Request:   r,
		SessionID: sessionID,
		Extra:     map[string]any{},
	}

	result, err := s.runner.Invoke(r.Context(), ic)
	if err != nil {
		s.writePipelineError(w, req.ID, err)
		return
	}

	callResult, err := registry.CoerceResult(result)
	if err != nil {
		s.writeRPCError(w, req.ID, http.StatusInternalServerError, protocol.ErrCodeInternalError, "failed to encode tool result")
		return
	}
	s.writeRPCResult(w, req.ID, callResult)
}

func (s *Server) writePipelineError(w http.ResponseWriter, id json.RawMessage, err error) {
	pe, ok := err.(*pipeline.Error)
	if !ok {
		s.writeRPCError(w, id, http.StatusInternalServerError, protocol.ErrCodeInternalError, err.Error())
		return
	}
	if pe.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(pe.RetryAfterSeconds))
	}
	if pe.Kind == pipeline.KindAuthMissingToken || pe.Kind == pipeline.KindAuthInvalidToken {
		w.Header().Set("WWW-Authenticate", wwwAuthenticateHeader(pe.ResourceMetadataURL, pe.Kind == pipeline.KindAuthMissingToken))
	}
	s.writeRPCErrorData(w, id, httpStatusForKind(pe.Kind), rpcCodeForKind(pe.Kind), pe.Message, rpcErrorData(pe))
}

func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	if !s.checkSession(r.Header.Get(protocol.HeaderSessionID)) {
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "unknown session")
		return
	}
	if ok, missingToken := s.verifyBearer(r); !ok {
		s.writeAuthError(w, req.ID, missingToken)
		return
	}
	tools := s.registry.ListTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": json.RawMessage(t.InputSchema),
		})
	}
	s.writeRPCResult(w, req.ID, map[string]any{"tools": out})
}

func (s *Server) handleResourcesList(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	if !s.checkSession(r.Header.Get(protocol.HeaderSessionID)) {
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "unknown session")
		return
	}
	if ok, missingToken := s.verifyBearer(r); !ok {
		s.writeAuthError(w, req.ID, missingToken)
		return
	}
	resources := s.registry.ListResources()
	out := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		out = append(out, map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		})
	}
	s.writeRPCResult(w, req.ID, map[string]any{"resources": out})
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	if !s.checkSession(r.Header.Get(protocol.HeaderSessionID)) {
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "unknown session")
		return
	}
	if ok, missingToken := s.verifyBearer(r); !ok {
		s.writeAuthError(w, req.ID, missingToken)
		return
	}

	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		s.writeRPCError(w, req.ID, http.StatusBadRequest, protocol.ErrCodeInvalidParams, "missing or malformed uri")
		return
	}

	res, ok := s.registry.Resource(params.URI)
	if !ok {
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeInvalidParams, "resource not found: "+params.URI)
		return
	}

	parsed, err := url.Parse(params.URI)
	if err != nil {
		s.writeRPCError(w, req.ID, http.StatusBadRequest, protocol.ErrCodeInvalidParams, "malformed resource uri")
		return
	}

	ic := &pipeline.InvocationContext{Request: r, SessionID: r.Header.Get(protocol.HeaderSessionID)}
	result, err := res.Handler(ic, parsed)
	if err != nil {
		s.writeRPCError(w, req.ID, http.StatusInternalServerError, protocol.ErrCodeInternalError, err.Error())
		return
	}
	s.applyResourceCSP(result)
	s.writeRPCResult(w, req.ID, map[string]any{"contents": []any{result}})
}

// applyResourceCSP injects a Content-Security-Policy meta tag, built from
// the configured policy string, into HTML resource content when the
// operator has configured one: right after <head> when present, else at
// the start of the text.
func (s *Server) applyResourceCSP(result *registry.ResourceReadResult) {
	if s.cfg.Server.ResourceCSP == "" || result == nil {
		return
	}
	if !strings.Contains(result.MimeType, "html") {
		return
	}
	meta := `<meta http-equiv="Content-Security-Policy" content="` + htmlAttrEscape(s.cfg.Server.ResourceCSP) + `">`
	if idx := strings.Index(strings.ToLower(result.Text), "<head>"); idx != -1 {
		insertAt := idx + len("<head>")
		result.Text = result.Text[:insertAt] + meta + result.Text[insertAt:]
		return
	}
	result.Text = meta + result.Text
}

func htmlAttrEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

func (s *Server) writeAuthError(w http.ResponseWriter, id json.RawMessage, missingToken bool) {
	meta := ""
	if s.authProv != nil {
		meta = strings.TrimRight(s.authProv.ResourceMetadata().Resource, "/") + protocol.PathProtectedResourceMetadata
	}
	w.Header().Set("WWW-Authenticate", wwwAuthenticateHeader(meta, missingToken))
	data := map[string]any{}
	if meta != "" {
		data["resourceMetadataUrl"] = meta
	}
	msg := "invalid or expired token"
	if missingToken {
		msg = "missing bearer token"
	}
	s.writeRPCErrorData(w, id, http.StatusUnauthorized, protocol.ErrCodeServerError, msg, data)
}
