package httpmcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/casys-ai/mcpserver/internal/protocol"
)

// handleSSE serves the GET /mcp stream. A client without Accept:
// text/event-stream gets 405; this server has nothing else to offer a
// plain GET.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") != "text/event-stream" {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "GET requires Accept: text/event-stream", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.Header.Get(protocol.HeaderSessionID)
	if sessionID != "" {
		s.mu.Lock()
		_, ok := s.sessions[sessionID]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	if ok, missingToken := s.verifyBearer(r); !ok {
		s.writeSSEAuthError(w, missingToken)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	key := sessionID
	if key == "" {
		key = "anonymous"
	}
	clientID := newClientID()
	client := newSSEClient(clientID, key)

	s.mu.Lock()
	s.sseClients[key] = append(s.sseClients[key], client)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if sessionID != "" {
		w.Header().Set(protocol.HeaderSessionID, sessionID)
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	defer s.removeSSEClient(key, clientID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, open := <-client.send:
			if !open {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) removeSSEClient(key, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sseClients[key]
	for i, c := range list {
		if c.ID == clientID {
			s.sseClients[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.sseClients[key]) == 0 {
		delete(s.sseClients, key)
	}
}

// publishSSE frames and fans payload out to every SSE client subscribed
// to key, reaping any client whose send buffer is full (a zombie
// connection the client side never reads from). Scans in reverse, so
// zombie indices are collected in descending order and removing them one
// by one after the scan doesn't shift the ones still to be removed.
func (s *Server) publishSSE(key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	id := s.nextEvent.Add(1)
	frame := []byte(fmt.Sprintf("id: %d\ndata: %s\n\n", id, data))

	s.mu.Lock()
	clients := s.sseClients[key]
	var zombies []int
	for i := len(clients) - 1; i >= 0; i-- {
		select {
		case clients[i].send <- frame:
		default:
			zombies = append(zombies, i)
		}
	}
	for _, i := range zombies {
		close(clients[i].send)
		clients = append(clients[:i], clients[i+1:]...)
	}
	if len(clients) == 0 {
		delete(s.sseClients, key)
	} else {
		s.sseClients[key] = clients
	}
	s.mu.Unlock()
}

func (s *Server) writeSSEAuthError(w http.ResponseWriter, missingToken bool) {
	meta := ""
	if s.authProv != nil {
		meta = strings.TrimRight(s.authProv.ResourceMetadata().Resource, "/") + protocol.PathProtectedResourceMetadata
	}
	w.Header().Set("WWW-Authenticate", wwwAuthenticateHeader(meta, missingToken))
	msg := "invalid or expired token"
	if missingToken {
		msg = "missing bearer token"
	}
	http.Error(w, msg, http.StatusUnauthorized)
}

func newClientID() string {
	return uuid.NewString()
}
