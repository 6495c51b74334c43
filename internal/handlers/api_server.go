// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/memeleague/memeleague/internal/engine"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/session"
)

// Server bundles the shared dependencies every handler closes over.
type Server struct {
	Store  session.Store
	Engine *engine.Engine
	Hub    *hub.Hub
	Interp Interpreter
	Logger *logrus.Logger
}

// NewServer wires a handler server around its collaborators.
func NewServer(store session.Store, eng *engine.Engine, h *hub.Hub, logger *logrus.Logger) *Server {
	return &Server{
		Store:  store,
		Engine: eng,
		Hub:    h,
		Interp: NewMemeForgeInterpreter(eng, store),
		Logger: logger,
	}
}

// Routes registers every HTTP endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", PingHandler)

	// guest identity
	mux.HandleFunc("/guest", s.GuestHandler())
	mux.HandleFunc("/guest/avatars", s.AvatarsHandler())

	// gamemode registry
	mux.HandleFunc("/gamemodes", s.GameModesHandler())

	// lobby endpoints
	mux.HandleFunc("/lobby/create", s.CreateLobbyHandler())
	mux.HandleFunc("/lobby/join", s.JoinLobbyHandler())
	mux.HandleFunc("/lobby/ws/", s.LobbyWSHandler())
	mux.HandleFunc("/lobby/", s.LobbyHandler())

	// in-game endpoints
	mux.HandleFunc("/game/", s.GameHandler())

	return mux
}

// PingHandler answers health checks.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
