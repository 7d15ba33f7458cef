package game

import (
	"log/slog"
	"net/http"

	"example.com/promptbattle/internal/httpapi"
)

// Server owns the transport edge: the WebSocket endpoint plus the small
// read-only REST surface.
type Server struct {
	log  *slog.Logger
	game *Game
	hub  *Hub
}

func NewServer(log *slog.Logger, g *Game, hub *Hub) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, game: g, hub: hub}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/state", s.handleState)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpapi.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s.game.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpapi.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s.game.Snapshot())
}
