package httpmcp

import (
	"context"
	"time"
)

const (
	defaultSessionTTLMinutes  = 30
	defaultGraceSeconds       = 60
	defaultReapIntervalMin    = 5
	defaultMaxSessionsFallback = 10000
)

func (s *Server) maxSessions() int {
	if s.cfg.Session.MaxSessions > 0 {
		return s.cfg.Session.MaxSessions
	}
	return defaultMaxSessionsFallback
}

func (s *Server) sessionTTL() time.Duration {
	minutes := s.cfg.Session.TTLMinutes
	if minutes <= 0 {
		minutes = defaultSessionTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Server) sessionGrace() time.Duration {
	secs := s.cfg.Session.GraceSeconds
	if secs <= 0 {
		secs = defaultGraceSeconds
	}
	return time.Duration(secs) * time.Second
}

func (s *Server) reapInterval() time.Duration {
	minutes := s.cfg.Session.ReapIntervalMinutes
	if minutes <= 0 {
		minutes = defaultReapIntervalMin
	}
	return time.Duration(minutes) * time.Minute
}

// checkSession reports whether a supplied session id is known, touching
// its LastActivity if so. A blank id is always "known" (no session was
// supplied at all), matching spec.md's "if a session id header is
// supplied, it must exist" rule: absence is fine, a stale/invented id
// is not.
func (s *Server) checkSession(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.LastActivity = time.Now()
	}
	return ok
}

// reapExpiredSessionsLocked removes sessions idle past TTL+grace. Callers
// must hold s.mu.
func (s *Server) reapExpiredSessionsLocked(now time.Time) int {
	cutoff := s.sessionTTL() + s.sessionGrace()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) > cutoff {
			delete(s.sessions, id)
			s.closeSSEClientsForSessionLocked(id)
			removed++
		}
	}
	return removed
}

func (s *Server) closeSSEClientsForSessionLocked(sessionID string) {
	clients, ok := s.sseClients[sessionID]
	if !ok {
		return
	}
	for _, c := range clients {
		close(c.send)
	}
	delete(s.sseClients, sessionID)
}

// runSessionReaper runs until ctx is cancelled, removing sessions idle
// past TTL+grace on each tick and reporting the count via metrics.
func (s *Server) runSessionReaper(ctx context.Context) {
	defer close(s.reaperDone)

	ticker := time.NewTicker(s.reapInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			removed := s.reapExpiredSessionsLocked(now)
			active := len(s.sessions)
			s.mu.Unlock()

			if s.metrics != nil {
				if removed > 0 {
					s.metrics.SessionsExpiredTotal.Add(float64(removed))
				}
				s.metrics.ActiveSessions.Set(float64(active))
			}
			if removed > 0 {
				s.log.Info().Int("removed", removed).Msg("reaped expired sessions")
			}
		}
	}
}
