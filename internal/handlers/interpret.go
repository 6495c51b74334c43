// internal/handlers/interpret.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/memeleague/memeleague/internal/auth"
	"github.com/memeleague/memeleague/internal/engine"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/models"
	"github.com/memeleague/memeleague/internal/session"
)

// Interpreter turns an inbound WebSocket action into session events. The
// gateway knows nothing about gamemode semantics; it just routes actions in
// and events out.
type Interpreter interface {
	Interpret(ctx context.Context, code string, caller auth.Guest, callerID uuid.UUID, action string, payload json.RawMessage) (*Interpretation, error)
}

// Interpretation is the outcome of one interpreted action.
type Interpretation struct {
	// Broadcast events fan out to every subscriber of the session.
	Broadcast []hub.Event
	// Reply, if set, goes only to the caller.
	Reply *hub.Event
}

// MemeForgeInterpreter maps the MemeForge actions onto the round engine.
type MemeForgeInterpreter struct {
	Engine *engine.Engine
	Store  session.Store
}

// NewMemeForgeInterpreter builds the default interpreter.
func NewMemeForgeInterpreter(eng *engine.Engine, store session.Store) *MemeForgeInterpreter {
	return &MemeForgeInterpreter{Engine: eng, Store: store}
}

type wsSubmitPayload struct {
	TemplateID string `json:"template_id"`
	Caption    string `json:"caption"`
}

type wsVotePayload struct {
	SubmissionID string `json:"submission_id"`
	Kind         string `json:"kind"`
}

func (m *MemeForgeInterpreter) Interpret(ctx context.Context, code string, caller auth.Guest, callerID uuid.UUID, action string, payload json.RawMessage) (*Interpretation, error) {
	switch action {
	case "submit":
		var p wsSubmitPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: malformed submit payload", engine.ErrInvalidInput)
		}
		if err := m.Engine.Submit(ctx, code, callerID, p.TemplateID, p.Caption); err != nil {
			return nil, err
		}
		return &Interpretation{
			Broadcast: []hub.Event{{
				Type: hub.EventSubmissionReceived,
				Payload: map[string]interface{}{
					"participant_id": callerID.String(),
					"display_name":   caller.DisplayName,
				},
			}},
		}, nil

	case "vote":
		var p wsVotePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: malformed vote payload", engine.ErrInvalidInput)
		}
		kind, err := models.ParseVoteKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
		}
		if err := m.Engine.Vote(ctx, code, callerID, p.SubmissionID, kind); err != nil {
			return nil, err
		}
		return &Interpretation{
			Reply: &hub.Event{Type: "vote_recorded"},
		}, nil

	case "reroll":
		tpl, err := m.Engine.Reroll(ctx, code, callerID)
		if err != nil {
			return nil, err
		}
		remaining, err := m.Store.RerollsRemaining(ctx, code, callerID.String())
		if err != nil {
			return nil, err
		}
		return &Interpretation{
			Reply: &hub.Event{
				Type: "reroll_result",
				Payload: map[string]interface{}{
					"template":          tpl,
					"rerolls_remaining": remaining,
				},
			},
		}, nil

	case "advance":
		res, err := m.Engine.Advance(ctx, code, callerID)
		if err != nil {
			return nil, err
		}
		out := &Interpretation{
			Broadcast: []hub.Event{{
				Type:    hub.EventLeaderboardUpdate,
				Payload: map[string]interface{}{"leaderboard": res.Leaderboard},
			}},
		}
		if res.Finished {
			out.Broadcast = append(out.Broadcast, hub.Event{
				Type:    hub.EventGameFinished,
				Payload: map[string]interface{}{"leaderboard": res.Leaderboard},
			})
		} else {
			out.Broadcast = append(out.Broadcast, hub.Event{
				Type: hub.EventRoundStarted,
				Payload: map[string]interface{}{
					"round":             res.Round,
					"voting_time_limit": models.VotingTimeLimitSec,
					"assignments":       res.Assignments,
				},
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", engine.ErrInvalidInput, action)
	}
}
