// internal/models/vote.go
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// VoteKind is the kind of vote a participant casts on a submission.
type VoteKind string

const (
	VoteLike      VoteKind = "like"
	VoteSuperlike VoteKind = "superlike"
	VoteDislike   VoteKind = "dislike"
)

// ScoreDelta returns the points the submission owner earns for this vote.
func (v VoteKind) ScoreDelta() int {
	switch v {
	case VoteLike:
		return 2
	case VoteSuperlike:
		return 5
	case VoteDislike:
		return -1
	}
	return 0
}

// ParseVoteKind validates a wire-format vote kind.
func ParseVoteKind(s string) (VoteKind, error) {
	switch VoteKind(s) {
	case VoteLike, VoteSuperlike, VoteDislike:
		return VoteKind(s), nil
	}
	return "", fmt.Errorf("invalid vote kind %q, valid kinds are like, superlike, dislike", s)
}

// Submission is one participant's captioned meme for the current round.
// Submissions are keyed by the owning participant, so resubmitting
// replaces the earlier entry.
type Submission struct {
	TemplateID string `json:"template_id"`
	Caption    string `json:"caption"`
}

// LeaderboardEntry is one row of the sorted leaderboard.
type LeaderboardEntry struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Score         int       `json:"score"`
}
