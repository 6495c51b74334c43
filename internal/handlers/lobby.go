// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/memeleague/memeleague/internal/engine"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/models"
)

// GameModesHandler lists the registered gamemodes and their setting specs
// so the host UI can render a configuration form.
func (s *Server) GameModesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"gamemodes": models.GameModeList()})
	}
}

// CreateLobbyHandler creates a session and returns its code. The caller
// becomes host; the host holds the session open and configures the game but
// does not play.
func (s *Server) CreateLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		_, hostID, ok := s.requireGuest(w, r)
		if !ok {
			return
		}

		code, err := s.Engine.CreateLobby(r.Context(), hostID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"code":     code,
			"redirect": "/lobby/" + code,
		})
	}
}

type joinRequest struct {
	Code string `json:"code"`
}

// JoinLobbyHandler adds the calling guest to a session as a participant.
// The display name and avatar ride in from the guest token; rejoining with
// the same name is a no-op, so a client can safely replay its join.
func (s *Server) JoinLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		g, guestID, ok := s.requireGuest(w, r)
		if !ok {
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid join payload", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(strings.TrimSpace(req.Code))
		if code == "" {
			http.Error(w, "code is required", http.StatusBadRequest)
			return
		}

		lobby, err := s.Engine.Join(r.Context(), code, models.Participant{
			ID:          guestID,
			DisplayName: g.DisplayName,
			AvatarRef:   g.AvatarRef,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		s.Hub.Publish(code, hub.Event{
			Type:    hub.EventParticipantsChanged,
			Payload: map[string]interface{}{"participants": lobby.Participants},
		})

		writeJSON(w, http.StatusOK, models.LobbyView{
			Code:         code,
			Participants: lobby.Participants,
			GameStarted:  lobby.GameStarted,
		})
	}
}

// LobbyHandler dispatches /lobby/{code} and /lobby/{code}/start.
func (s *Server) LobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/lobby/"), "/")
		if len(parts) < 1 || parts[0] == "" {
			http.Error(w, "missing lobby code", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(parts[0])

		if len(parts) == 1 {
			s.lobbyView(w, r, code)
			return
		}
		if parts[1] == "start" {
			s.lobbyStart(w, r, code)
			return
		}
		http.NotFound(w, r)
	}
}

// lobbyView returns the caller's projection of the lobby. A guest who has
// not joined yet is pointed at the join flow instead of getting a hard 403.
func (s *Server) lobbyView(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	view, err := s.Engine.View(r.Context(), code, guestID)
	if err != nil {
		if errors.Is(err, engine.ErrNotMember) {
			writeJSON(w, http.StatusForbidden, errorBody{
				Error:    "join the session first",
				Redirect: "/lobby/join",
			})
			return
		}
		writeError(w, err)
		return
	}
	// Viewing counts as session activity for TTL purposes.
	if err := s.Store.Touch(r.Context(), code); err != nil {
		s.Logger.Debugf("touch %s: %v", code, err)
	}
	writeJSON(w, http.StatusOK, view)
}

// lobbyStart starts the game. Host only. On success every subscriber gets a
// game_start followed by round_started for round 1.
func (s *Server) lobbyStart(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	// Decoding over the defaults keeps omitted settings at their defaults
	// while an explicit zero (a no-reroll game) is honored.
	cfg := models.DefaultMemeForgeConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && err.Error() != "EOF" {
		http.Error(w, "invalid gamemode config", http.StatusBadRequest)
		return
	}

	res, err := s.Engine.Start(r.Context(), code, guestID, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	s.Hub.Publish(code, hub.Event{
		Type:    hub.EventGameStart,
		Payload: map[string]interface{}{"redirect": res.RedirectURL},
	})
	s.Hub.Publish(code, hub.Event{
		Type: hub.EventRoundStarted,
		Payload: map[string]interface{}{
			"round":             res.Round,
			"rounds":            res.Lobby.Gamemode.Rounds,
			"time_limit":        res.Lobby.Gamemode.TimeLimitSec,
			"voting_time_limit": models.VotingTimeLimitSec,
			"assignments":       res.Assignments,
		},
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redirect": res.RedirectURL,
		"round":    res.Round,
	})
}
