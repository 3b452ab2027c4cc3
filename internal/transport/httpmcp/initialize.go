package httpmcp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/casys-ai/mcpserver/internal/protocol"
)

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      map[string]any `json:"serverInfo"`
}

// handleInitialize is never auth-gated: it's how a client discovers the
// server's protected-resource metadata in the first place. It's instead
// protected by a dedicated per-IP rate limiter so it can't be used to
// exhaust the session table from one address.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	ip := s.ipExtractor(r)
	if !s.initLimiter.CheckLimit(ip) {
		retryAfter := s.initLimiter.GetTimeUntilSlot(ip)
		secs := int(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeRPCErrorData(w, req.ID, http.StatusTooManyRequests, protocol.ErrCodeServerError, "Too many initialize requests", map[string]any{"retryAfterSeconds": secs})
		return
	}

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions() {
		s.reapExpiredSessionsLocked(time.Now())
	}
	if len(s.sessions) >= s.maxSessions() {
		s.mu.Unlock()
		s.writeRPCError(w, req.ID, http.StatusServiceUnavailable, protocol.ErrCodeServerError, "Too many active sessions")
		return
	}
	s.mu.Unlock()

	id, err := newSessionID()
	if err != nil {
		s.writeRPCError(w, req.ID, http.StatusInternalServerError, protocol.ErrCodeInternalError, "failed to allocate session")
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.sessions[id] = &Session{ID: id, CreatedAt: now, LastActivity: now}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	capabilities := map[string]any{"tools": map[string]any{}}
	if s.registry.HasResourcesCapability() {
		capabilities["resources"] = map[string]any{}
	}

	w.Header().Set(protocol.HeaderSessionID, id)
	s.writeRPCResult(w, req.ID, initializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    capabilities,
		ServerInfo:      map[string]any{"name": s.serverInfo.Name, "version": s.serverInfo.Version},
	})
}
