package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/version"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Routes
const (
	SessionRoute = "GET /ws/{session}"
	HealthRoute  = "GET /healthz"
)

// Health is the body of GET /healthz.
type Health struct {
	Status      string        `json:"status"`
	Version     string        `json:"version"`
	Connections int           `json:"connections"`
	Sessions    []SessionInfo `json:"sessions"`
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SessionRoute, s.handleSession)
	mux.HandleFunc(HealthRoute, s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:      "ok",
		Version:     version.Version,
		Connections: s.GetActiveConnections(),
		Sessions:    s.hub.Sessions(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	remoteAddr := getClientIP(r)

	if !session.ValidID(id) {
		logging.Warn("Rejected websocket request",
			zap.String("remote_addr", remoteAddr),
			zap.String("session", id),
		)
		writeJSONError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		writeJSONError(w, http.StatusServiceUnavailable, "relay shutting down")
		return
	}

	LogUpgradeRequest(r, remoteAddr)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	store := s.hub.Join(id)
	c := newClient(ws, id, remoteAddr, store, s.newLimiter(), s.capture)

	if !s.track(c) {
		c.close()
		_ = ws.Close()
		s.hub.Leave(id)
		return
	}
	defer func() {
		s.untrack(c)
		s.hub.Leave(id)
	}()

	c.run()
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.config.RateLimit <= 0 {
		return nil
	}
	burst := s.config.Burst
	if burst <= 0 {
		burst = int(s.config.RateLimit) + 1
	}
	return rate.NewLimiter(rate.Limit(s.config.RateLimit), burst)
}

// newUpgrader allows any origin unless origins are configured, in which case the
// Origin host must match one of them.
func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(o)] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return allowed[strings.ToLower(u.Host)] || allowed[strings.ToLower(u.Hostname())]
		},
	}
}

// LogUpgradeRequest logs the details of a websocket upgrade request
func LogUpgradeRequest(req *http.Request, remoteAddr string) {
	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("path", req.URL.Path),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}

// getClientIP extracts the client IP, honouring forwarding headers only when
// the direct peer is a loopback or private address.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if parts := strings.SplitN(xff, ",", 2); len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
