package httpmcp

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/casys-ai/mcpserver/internal/auth"
	"github.com/casys-ai/mcpserver/internal/protocol"
)

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleSSE(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost dispatches one JSON-RPC request/notification received over
// POST. Body size is enforced twice when a limit is configured: once
// against Content-Length before any read, and once while streaming via
// http.MaxBytesReader, since a client can omit or lie about
// Content-Length. A nil MaxBodyBytes disables the check entirely; a
// configured 0 rejects every body, even an empty one, without reading.
// Before any of that, the per-client-IP limiter answers a breach with 429
// and a Retry-After of at least one second.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if ip := s.ipExtractor(r); !s.ipLimiter.CheckLimit(ip) {
		secs := int(s.ipLimiter.GetTimeUntilSlot(ip).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeRPCErrorData(w, nil, http.StatusTooManyRequests, protocol.ErrCodeServerError, "Too many requests", map[string]any{"retryAfterSeconds": secs})
		return
	}

	var body []byte
	var err error

	switch limit := s.cfg.Server.MaxBodyBytes; {
	case limit == nil:
		body, err = io.ReadAll(r.Body)
	case *limit == 0:
		s.writeRPCError(w, nil, http.StatusRequestEntityTooLarge, protocol.ErrCodeInvalidRequest, "request body exceeds configured limit")
		return
	default:
		maxBytes := *limit
		if r.ContentLength > maxBytes {
			s.writeRPCError(w, nil, http.StatusRequestEntityTooLarge, protocol.ErrCodeInvalidRequest, "request body exceeds configured limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		s.writeRPCError(w, nil, http.StatusRequestEntityTooLarge, protocol.ErrCodeInvalidRequest, "request body exceeds configured limit")
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPCError(w, nil, http.StatusBadRequest, protocol.ErrCodeParseError, "malformed JSON")
		return
	}
	if req.Method == "" {
		s.writeRPCError(w, req.ID, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "missing method")
		return
	}

	// A request bearing a method but no id is a JSON-RPC notification:
	// spec.md §4.G requires a bare 202 regardless of which method it
	// names, so this check must run before any method is dispatched to
	// its handler, not just fall out of the unknown-method default case.
	if req.isNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case protocol.MethodInitialize:
		s.handleInitialize(w, r, req)
	case protocol.MethodToolsCall:
		s.handleToolsCall(w, r, req)
	case protocol.MethodToolsList:
		s.handleToolsList(w, r, req)
	case protocol.MethodResourcesList:
		s.handleResourcesList(w, r, req)
	case protocol.MethodResourcesRead:
		s.handleResourcesRead(w, r, req)
	default:
		s.writeRPCError(w, req.ID, http.StatusNotFound, protocol.ErrCodeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) writeRPCError(w http.ResponseWriter, id json.RawMessage, status, code int, message string) {
	s.writeRPCErrorData(w, id, status, code, message, nil)
}

func (s *Server) writeRPCErrorData(w http.ResponseWriter, id json.RawMessage, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := newErrorResponse(id, code, message, data)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	resp := newResultResponse(id, result)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if s.authProv == nil {
		http.NotFound(w, r)
		return
	}
	meta := s.authProv.ResourceMetadata()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}

// verifyBearer extracts and verifies the Authorization header against the
// configured auth provider, used for the three methods gated outside the
// pipeline (tools/list, resources/list, resources/read).
func (s *Server) verifyBearer(r *http.Request) (verified bool, missingToken bool) {
	if s.authProv == nil {
		return true, false
	}
	header := r.Header.Get("Authorization")
	token, ok := auth.BearerExtract(header)
	if !ok {
		return false, true
	}
	_, err := s.authProv.VerifyToken(r.Context(), token)
	return err == nil, false
}
