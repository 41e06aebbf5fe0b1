// Package server terminates client connections: the websocket endpoint,
// its per-connection session state machine, and the ops/stats HTTP routes.
package server

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/match"
	"github.com/pitchside/pitchside/persist"
)

const defaultRankingsLimit = 10

// Server wires HTTP routes to the match manager, the broadcast hub, and
// the stats store.
type Server struct {
	mgr      *match.Manager
	hub      *Hub
	store    persist.MatchStore
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(mgr *match.Manager, hub *Hub, store persist.MatchStore, log zerolog.Logger) *Server {
	return &Server{
		mgr:   mgr,
		hub:   hub,
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP surface: the websocket endpoint plus health and
// stats routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/rankings", s.handleRankings).Methods(http.MethodGet)
	r.HandleFunc("/stats/players/{name}", s.handlePlayerStats).Methods(http.MethodGet)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	sess := newSession(conn, s.hub, s.mgr, s.log)
	defer conn.Close()
	sess.serve(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mgr.Stats())
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	name := mux.Vars(r)["name"]
	stats, err := s.store.PlayerStats(r.Context(), name)
	if err != nil {
		if eris.Is(err, persist.ErrPlayerNotFound) {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("name", name).Msg("player stats query")
		http.Error(w, "stats query failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := defaultRankingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	rankings, err := s.store.Rankings(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("rankings query")
		http.Error(w, "stats query failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rankings)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
