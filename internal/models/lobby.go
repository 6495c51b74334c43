// internal/models/lobby.go
package models

import "github.com/google/uuid"

// MaxDisplayNameLen caps guest display names.
const MaxDisplayNameLen = 20

// Participant is a joined player inside a session. The host is not a
// participant; it only holds the session open and configures the game.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarRef   string    `json:"avatar_ref"`
}

// Lobby is the session root, addressed externally only by its short code.
// The serialized form in the session store is authoritative; in-process
// copies live for the duration of a single operation.
type Lobby struct {
	Code         string            `json:"code"`
	HostID       uuid.UUID         `json:"host_id"`
	Participants []Participant     `json:"participants"`
	GameStarted  bool              `json:"game_started"`
	Gamemode     *MemeForgeConfig  `json:"gamemode,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
}

// HasParticipant reports whether a participant with the given display name
// has already joined. Display names are unique within a session.
func (l *Lobby) HasParticipant(displayName string) bool {
	for _, p := range l.Participants {
		if p.DisplayName == displayName {
			return true
		}
	}
	return false
}

// ParticipantByID returns the joined participant with the given ID, if any.
func (l *Lobby) ParticipantByID(id uuid.UUID) (Participant, bool) {
	for _, p := range l.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// IsMember reports whether the caller is the host or a joined participant.
func (l *Lobby) IsMember(id uuid.UUID) bool {
	if l.HostID == id {
		return true
	}
	_, ok := l.ParticipantByID(id)
	return ok
}

// LobbyView is the per-caller projection of a lobby returned by the gateway.
type LobbyView struct {
	Code         string        `json:"code"`
	Participants []Participant `json:"participants"`
	GameStarted  bool          `json:"game_started"`
	IsHost       bool          `json:"is_host"`
	CanStart     bool          `json:"can_start,omitempty"`
	CurrentRound int           `json:"current_round,omitempty"`
}
