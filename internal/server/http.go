package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luciancaetano/kephaschat/internal/protocol"
	"github.com/luciancaetano/kephaschat/internal/transport"
)

func (srv *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", srv.handleWebSocket)
	r.Get("/healthz", srv.handleHealth)
	r.Get("/users", srv.handleUsers)

	return r
}

// handleWebSocket upgrades the request and serves the same frame stream a
// TCP session gets. Frames may span several binary messages.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		srv.cfg.Logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn.SetReadLimit(int64(srv.cfg.MaxBodySize) + protocol.HeaderSize)
	srv.openSession(transport.NewWebSocket(conn, srv.cfg.WriteTimeout))
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	srv.sessMu.Lock()
	accepting := srv.accepting
	srv.sessMu.Unlock()

	if !accepting {
		srv.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
		return
	}
	srv.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (srv *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	nicks, err := srv.Nicknames(r.Context())
	if err != nil {
		srv.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	srv.writeJSON(w, http.StatusOK, nicks)
}

func (srv *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.cfg.Logger.Debug("failed to write http response", "status", status, "error", err)
	}
}
