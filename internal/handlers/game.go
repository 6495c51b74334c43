// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/memeleague/memeleague/internal/engine"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/models"
)

// GameHandler dispatches /game/{code}/{action} for in-round actions.
func (s *Server) GameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/"), "/")
		if len(parts) < 2 || parts[0] == "" {
			http.Error(w, "missing game code or action", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(parts[0])

		switch parts[1] {
		case "reroll":
			s.gameReroll(w, r, code)
		case "submit":
			s.gameSubmit(w, r, code)
		case "vote":
			s.gameVote(w, r, code)
		case "advance":
			s.gameAdvance(w, r, code)
		case "leaderboard":
			s.gameLeaderboard(w, r, code)
		default:
			http.NotFound(w, r)
		}
	}
}

// gameReroll swaps the caller's current template for a fresh one, spending
// one reroll from their budget.
func (s *Server) gameReroll(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	tpl, err := s.Engine.Reroll(r.Context(), code, guestID)
	if err != nil {
		writeError(w, err)
		return
	}

	remaining, err := s.Store.RerollsRemaining(r.Context(), code, guestID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"template":          tpl,
		"rerolls_remaining": remaining,
	})
}

type submitRequest struct {
	TemplateID string `json:"template_id"`
	Caption    string `json:"caption"`
}

// gameSubmit records the caller's captioned meme for the current round.
// Resubmitting replaces the earlier entry.
func (s *Server) gameSubmit(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid submit payload", http.StatusBadRequest)
		return
	}

	if err := s.Engine.Submit(r.Context(), code, guestID, req.TemplateID, req.Caption); err != nil {
		writeError(w, err)
		return
	}

	s.Hub.Publish(code, hub.Event{
		Type: hub.EventSubmissionReceived,
		Payload: map[string]interface{}{
			"participant_id": guestID.String(),
			"display_name":   g.DisplayName,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}

type voteRequest struct {
	SubmissionID string `json:"submission_id"`
	Kind         string `json:"kind"`
}

// gameVote records the caller's reaction to a submission. A later vote by
// the same voter on the same submission overwrites the earlier one.
func (s *Server) gameVote(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid vote payload", http.StatusBadRequest)
		return
	}
	kind, err := models.ParseVoteKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Engine.Vote(r.Context(), code, guestID, req.SubmissionID, kind); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// gameAdvance closes the current round: tallies votes, applies scores, and
// either deals the next round or finishes the game. Host only over HTTP.
func (s *Server) gameAdvance(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, guestID, ok := s.requireGuest(w, r)
	if !ok {
		return
	}

	res, err := s.Engine.Advance(r.Context(), code, guestID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.publishAdvance(code, res)
	writeJSON(w, http.StatusOK, res)
}

// publishAdvance fans out the events for a completed round transition.
func (s *Server) publishAdvance(code string, res *engine.AdvanceResult) {
	s.Hub.Publish(code, hub.Event{
		Type:    hub.EventLeaderboardUpdate,
		Payload: map[string]interface{}{"leaderboard": res.Leaderboard},
	})
	if res.Finished {
		s.Hub.Publish(code, hub.Event{
			Type:    hub.EventGameFinished,
			Payload: map[string]interface{}{"leaderboard": res.Leaderboard},
		})
		return
	}
	s.Hub.Publish(code, hub.Event{
		Type: hub.EventRoundStarted,
		Payload: map[string]interface{}{
			"round":             res.Round,
			"voting_time_limit": models.VotingTimeLimitSec,
			"assignments":       res.Assignments,
		},
	})
}

// gameLeaderboard returns the standings, including zero-score participants.
func (s *Server) gameLeaderboard(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, _, ok := s.requireGuest(w, r); !ok {
		return
	}

	entries, err := s.Engine.Leaderboard(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}
