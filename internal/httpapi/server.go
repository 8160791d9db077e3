// Package httpapi exposes the hub's HTTP surface: the websocket endpoint,
// synthesized audio files, health, metrics, and the security view.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/thunder45/service-translate-sub001/internal/audiocache"
	"github.com/thunder45/service-translate-sub001/internal/audit"
	"github.com/thunder45/service-translate-sub001/internal/config"
	"github.com/thunder45/service-translate-sub001/internal/errs"
	"github.com/thunder45/service-translate-sub001/internal/hub"
	"github.com/thunder45/service-translate-sub001/internal/observability"
	"github.com/thunder45/service-translate-sub001/internal/persist"
	"github.com/thunder45/service-translate-sub001/internal/security"
	"github.com/thunder45/service-translate-sub001/internal/session"
)

type Server struct {
	cfg      config.Config
	hub      *hub.Hub
	sessions *session.Manager
	cache    *audiocache.Cache
	guard    *security.Guard
	auditLog *audit.Log
	startAt  time.Time
	upgrader websocket.Upgrader
}

func New(cfg config.Config, h *hub.Hub, sessions *session.Manager, cache *audiocache.Cache, guard *security.Guard, auditLog *audit.Log) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      h,
		sessions: sessions,
		cache:    cache,
		guard:    guard,
		auditLog: auditLog,
		startAt:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin admits same-host browsers, the configured allowlist, and
// non-browser clients that send no Origin at all.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.handleWS)
	r.Get("/audio/{filename}", s.handleAudio)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/security", s.handleSecurity)

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if err := s.guard.AllowConnection(ip); err != nil {
		appErr := errs.From(err)
		s.auditLog.Record(r.Context(), audit.Event{
			Code:       string(appErr.Code),
			RemoteAddr: ip,
			Operation:  "connect",
			Reason:     appErr.Message,
		})
		status := http.StatusTooManyRequests
		if appErr.Code == errs.SystemConnectionLimit {
			status = http.StatusServiceUnavailable
		}
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", appErr.RetryAfter.Round(time.Second).String())
		}
		respondError(w, status, string(appErr.Code), appErr.UserMessage())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.guard.ConnectionClosed(ip)
		return
	}
	s.hub.ServeConn(r.Context(), conn, ip)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	artifact, err := s.cache.Open(filename)
	if err != nil {
		if errors.Is(err, persist.ErrNotExist) {
			respondError(w, http.StatusNotFound, "not_found", "audio artifact not found")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_name", "invalid audio artifact name")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Type", audioContentType(artifact.Format))
	http.ServeFile(w, r, artifact.FilePath)
}

// audioContentType maps an artifact format to its MIME type.
func audioContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "ogg_vorbis":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptimeSeconds":  int64(time.Since(s.startAt).Seconds()),
		"activeSessions": s.sessions.ActiveCount(),
		"connections":    s.hub.CountsByRole(),
		"audioCache":     s.cache.Stats(),
	})
}

func (s *Server) handleSecurity(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"recentEvents": s.auditLog.Recent(100),
		"blockedIps":   s.guard.BlockedIPs(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
