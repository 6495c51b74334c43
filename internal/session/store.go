// internal/session/store.go
package session

import (
	"context"
	"errors"
	"time"

	"github.com/memeleague/memeleague/internal/models"
)

// DefaultTTL is the idle expiry for a session. Every write refreshes it;
// a session nobody touches for this long is evicted.
const DefaultTTL = 2 * time.Hour

var (
	// ErrNotFound means the code does not map to a live session. Callers
	// treat this as "expired or invalid code", never as a crash.
	ErrNotFound = errors.New("session not found")

	// ErrStale is returned when a compare-and-swap update lost a race and
	// exhausted its retries.
	ErrStale = errors.New("session state changed concurrently")

	// ErrNoRerolls is returned by DecrementReroll when the counter is
	// already zero. The counter is never decremented below zero.
	ErrNoRerolls = errors.New("no rerolls remaining")

	// ErrUnavailable wraps infrastructure failures (store unreachable).
	// Distinct from ErrNotFound so clients do not mistake an outage for
	// an expired session.
	ErrUnavailable = errors.New("session store unavailable")
)

// Store is the durable-within-TTL shared state behind every session. All
// server processes go through the same store, so no in-process copy of a
// session is authoritative beyond a single operation.
//
// Hot fields (reroll counters, votes, scores) use per-field atomic
// primitives; composite fields (the lobby record, the round counter) go
// through compare-and-swap so concurrent read-modify-write cannot lose
// updates.
type Store interface {
	// Lobby record.
	PutLobby(ctx context.Context, lobby *models.Lobby) error
	GetLobby(ctx context.Context, code string) (*models.Lobby, error)
	LobbyExists(ctx context.Context, code string) (bool, error)
	// UpdateLobby applies mutate under CAS and persists the result,
	// returning the updated lobby. Errors from mutate pass through.
	UpdateLobby(ctx context.Context, code string, mutate func(*models.Lobby) error) (*models.Lobby, error)

	// Template pool, loaded once at game start.
	PutTemplates(ctx context.Context, code string, templates []models.Template) error
	GetTemplates(ctx context.Context, code string) (map[string]models.Template, error)

	// Round counter. AdvanceRound succeeds only if the current round still
	// equals from; a concurrent advance surfaces as ErrStale so the loser
	// never double-applies a tally.
	SetRound(ctx context.Context, code string, round int) error
	GetRound(ctx context.Context, code string) (int, error)
	AdvanceRound(ctx context.Context, code string, from int) (int, error)

	// Terminal flag. MarkFinished reports whether this call was the one
	// that flipped it, so the final tally runs exactly once.
	MarkFinished(ctx context.Context, code string) (bool, error)
	IsFinished(ctx context.Context, code string) (bool, error)

	// Per-participant reroll budgets.
	InitRerolls(ctx context.Context, code string, participantIDs []string, count int) error
	RerollsRemaining(ctx context.Context, code, participantID string) (int, error)
	DecrementReroll(ctx context.Context, code, participantID string) (int, error)

	// Current template assignment per participant.
	SetAssignment(ctx context.Context, code, participantID, templateID string) error
	GetAssignments(ctx context.Context, code string) (map[string]string, error)

	// Submissions, keyed by participant; a later put replaces the earlier.
	PutSubmission(ctx context.Context, code, participantID string, sub models.Submission) error
	GetSubmissions(ctx context.Context, code string) (map[string]models.Submission, error)

	// Votes, keyed voter:submission; a later vote overwrites the earlier,
	// so only the final kind per pair counts at tally time.
	PutVote(ctx context.Context, code, voterID, submissionID string, kind models.VoteKind) error
	GetVotes(ctx context.Context, code string) (map[string]models.VoteKind, error)

	// Cumulative scores, never reset for the lifetime of the session.
	AddScores(ctx context.Context, code string, deltas map[string]int) error
	GetScores(ctx context.Context, code string) (map[string]int, error)

	// ClearRound wipes submissions, votes and assignments between rounds.
	ClearRound(ctx context.Context, code string) error

	// Touch refreshes the TTL on every key the session owns.
	Touch(ctx context.Context, code string) error
}

// VoteKey builds the composite hash field for one (voter, submission) pair.
func VoteKey(voterID, submissionID string) string {
	return voterID + ":" + submissionID
}

// SplitVoteKey is the inverse of VoteKey.
func SplitVoteKey(key string) (voterID, submissionID string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
