// internal/engine/engine_test.go
package engine

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeleague/memeleague/internal/catalog"
	"github.com/memeleague/memeleague/internal/models"
	"github.com/memeleague/memeleague/internal/session"
)

func newTestEngine(t *testing.T) (*Engine, *session.MemStore) {
	t.Helper()
	store := session.NewMemStore(0)
	cat := catalog.NewStaticCatalog(catalog.DefaultSeed())
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(store, cat, logger), store
}

// setupLobby creates a lobby with a host and n joined participants.
func setupLobby(t *testing.T, e *Engine, n int) (code string, hostID uuid.UUID, participants []models.Participant) {
	t.Helper()
	ctx := context.Background()
	hostID = uuid.New()
	code, err := e.CreateLobby(ctx, hostID)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		p := models.Participant{
			ID:          uuid.New(),
			DisplayName: string(rune('A' + i)),
			AvatarRef:   "/static/avatars/avatar-01.png",
		}
		_, err := e.Join(ctx, code, p)
		require.NoError(t, err)
		participants = append(participants, p)
	}
	return code, hostID, participants
}

func TestCreateLobbyUniqueCodes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := e.CreateLobby(ctx, uuid.New())
		require.NoError(t, err)
		assert.Len(t, code, 5)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
}

func TestJoinIdempotentByDisplayName(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, _, _ := setupLobby(t, e, 1)

	p := models.Participant{ID: uuid.New(), DisplayName: "Sam", AvatarRef: "/static/avatars/avatar-02.png"}
	lobby, err := e.Join(ctx, code, p)
	require.NoError(t, err)
	require.Len(t, lobby.Participants, 2)

	// Replaying the join must not duplicate the participant.
	lobby, err = e.Join(ctx, code, p)
	require.NoError(t, err)
	assert.Len(t, lobby.Participants, 2)
}

func TestJoinRequiresProfile(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, _, _ := setupLobby(t, e, 0)

	_, err := e.Join(ctx, code, models.Participant{ID: uuid.New(), DisplayName: "NoAvatar"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.Join(ctx, code, models.Participant{ID: uuid.New(), AvatarRef: "/static/avatars/avatar-01.png"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestJoinRejectedAfterStart(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, hostID, _ := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{RerollsPerPlayer: 2})
	require.NoError(t, err)

	_, err = e.Join(ctx, code, models.Participant{
		ID: uuid.New(), DisplayName: "Late", AvatarRef: "/static/avatars/avatar-03.png",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestJoinUnknownCode(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Join(context.Background(), "ZZZZZ", models.Participant{
		ID: uuid.New(), DisplayName: "Sam", AvatarRef: "/static/avatars/avatar-01.png",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestViewMembership(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 1)

	// Strangers are told to join, not given a hard failure.
	_, err := e.View(ctx, code, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)

	view, err := e.View(ctx, code, hostID)
	require.NoError(t, err)
	assert.True(t, view.IsHost)
	assert.False(t, view.CanStart, "one participant should not be startable")

	view, err = e.View(ctx, code, parts[0].ID)
	require.NoError(t, err)
	assert.False(t, view.IsHost)

	_, err = e.Join(ctx, code, models.Participant{
		ID: uuid.New(), DisplayName: "Second", AvatarRef: "/static/avatars/avatar-02.png",
	})
	require.NoError(t, err)

	view, err = e.View(ctx, code, hostID)
	require.NoError(t, err)
	assert.True(t, view.CanStart)
}

func TestStartValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, parts[0].ID, models.MemeForgeConfig{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.Start(ctx, code, hostID, models.MemeForgeConfig{Rounds: 99})
	assert.ErrorIs(t, err, ErrInvalidInput)

	small, smallHost, _ := setupLobby(t, e, 1)
	_, err = e.Start(ctx, small, smallHost, models.MemeForgeConfig{})
	assert.ErrorIs(t, err, ErrInvalidState, "one participant is not enough")

	res, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{RerollsPerPlayer: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Round)
	assert.Equal(t, "/game/"+code, res.RedirectURL)
	assert.Len(t, res.Assignments, 2)
	assert.Equal(t, models.DefaultRounds, res.Lobby.Gamemode.Rounds)

	// Starting twice is rejected.
	_, err = e.Start(ctx, code, hostID, models.MemeForgeConfig{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStartFailedPoolSelectionLeavesLobbyStartable(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, _ := setupLobby(t, e, 2)

	// The seed catalog carries no tagged templates, so this selection fails.
	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{TemplateTags: []string{"NSFW"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	lobby, err := store.GetLobby(ctx, code)
	require.NoError(t, err)
	assert.False(t, lobby.GameStarted, "failed start must not persist the started flag")

	// A corrected retry goes through.
	res, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{RerollsPerPlayer: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Round)
	assert.Len(t, res.Assignments, 2)
}

func TestRerollBudget(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{RerollsPerPlayer: 2})
	require.NoError(t, err)

	pid := parts[0].ID
	tpl, err := e.Reroll(ctx, code, pid)
	require.NoError(t, err)
	require.NotNil(t, tpl)

	// The fresh deal is recorded as the new assignment.
	assignments, err := store.GetAssignments(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, assignments[pid.String()])

	_, err = e.Reroll(ctx, code, pid)
	require.NoError(t, err)

	_, err = e.Reroll(ctx, code, pid)
	assert.ErrorIs(t, err, ErrNoRerolls)

	// Budget exhaustion is per participant.
	_, err = e.Reroll(ctx, code, parts[1].ID)
	assert.NoError(t, err)

	_, err = e.Reroll(ctx, code, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
}

// flakyPoolStore fails template pool reads on demand.
type flakyPoolStore struct {
	*session.MemStore
	fail bool
}

func (s *flakyPoolStore) GetTemplates(ctx context.Context, code string) (map[string]models.Template, error) {
	if s.fail {
		return nil, session.ErrUnavailable
	}
	return s.MemStore.GetTemplates(ctx, code)
}

func TestRerollNotSpentWhenPoolReadFails(t *testing.T) {
	store := &flakyPoolStore{MemStore: session.NewMemStore(0)}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := New(store, catalog.NewStaticCatalog(catalog.DefaultSeed()), logger)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{RerollsPerPlayer: 2})
	require.NoError(t, err)

	store.fail = true
	_, err = e.Reroll(ctx, code, parts[0].ID)
	assert.ErrorIs(t, err, ErrUnavailable)
	store.fail = false

	remaining, err := store.RerollsRemaining(ctx, code, parts[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, remaining, "failed reroll must not spend budget")
}

func TestSubmitValidation(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{})
	require.NoError(t, err)

	pool, err := store.GetTemplates(ctx, code)
	require.NoError(t, err)
	var tplID string
	for id := range pool {
		tplID = id
		break
	}

	long := make([]byte, models.MaxCaptionLen+1)
	for i := range long {
		long[i] = 'x'
	}
	err = e.Submit(ctx, code, parts[0].ID, tplID, string(long))
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = e.Submit(ctx, code, parts[0].ID, "not-in-pool", "caption")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, e.Submit(ctx, code, parts[0].ID, tplID, "first"))
	require.NoError(t, e.Submit(ctx, code, parts[0].ID, tplID, "second"))

	subs, err := store.GetSubmissions(ctx, code)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "second", subs[parts[0].ID.String()].Caption)
}

func TestVoteOverwrite(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{Rounds: 1})
	require.NoError(t, err)

	err = e.Vote(ctx, code, parts[1].ID, parts[0].ID.String(), models.VoteLike)
	assert.ErrorIs(t, err, ErrInvalidState, "voting before any submission")

	assignments, err := store.GetAssignments(ctx, code)
	require.NoError(t, err)
	require.NoError(t, e.Submit(ctx, code, parts[0].ID, assignments[parts[0].ID.String()], "mine"))

	err = e.Vote(ctx, code, parts[1].ID, "nope", models.VoteLike)
	assert.ErrorIs(t, err, ErrInvalidInput)

	subID := parts[0].ID.String()
	require.NoError(t, e.Vote(ctx, code, parts[1].ID, subID, models.VoteDislike))
	require.NoError(t, e.Vote(ctx, code, parts[1].ID, subID, models.VoteSuperlike))

	// Final vote wins regardless of what came before.
	res, err := e.Advance(ctx, code, hostID)
	require.NoError(t, err)
	require.True(t, res.Finished)
	assert.Equal(t, parts[0].ID, res.Leaderboard[0].ParticipantID)
	assert.Equal(t, models.VoteSuperlike.ScoreDelta(), res.Leaderboard[0].Score)
}

func TestAdvanceLifecycle(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 2)

	_, err := e.Advance(ctx, code, hostID)
	assert.ErrorIs(t, err, ErrInvalidState, "advance before start")

	_, err = e.Start(ctx, code, hostID, models.MemeForgeConfig{Rounds: 2})
	require.NoError(t, err)

	_, err = e.Advance(ctx, code, parts[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := e.Advance(ctx, code, hostID)
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Equal(t, 2, res.Round)
	assert.Len(t, res.Assignments, 2, "next round must be dealt")

	// Round data is cleared between rounds.
	subs, err := store.GetSubmissions(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, subs)

	res, err = e.Advance(ctx, code, hostID)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, 2, res.Round)

	_, err = e.Advance(ctx, code, hostID)
	assert.ErrorIs(t, err, ErrGameFinished)

	// The internal scheduler may advance with the nil caller.
	_, err = e.Advance(ctx, code, uuid.Nil)
	assert.ErrorIs(t, err, ErrGameFinished)
}

func TestLeaderboardIncludesZeroScores(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 3)

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{Rounds: 1})
	require.NoError(t, err)

	board, err := e.Leaderboard(ctx, code)
	require.NoError(t, err)
	require.Len(t, board, 3)
	for _, entry := range board {
		assert.Zero(t, entry.Score)
	}
	// Ties keep join order.
	assert.Equal(t, parts[0].ID, board[0].ParticipantID)
	assert.Equal(t, parts[1].ID, board[1].ParticipantID)
}

// TestFullGame walks a complete two-round session: start, rerolls,
// submissions, votes, both advances, and the final standings.
func TestFullGame(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	code, hostID, parts := setupLobby(t, e, 3)
	a, b, c := parts[0], parts[1], parts[2]

	_, err := e.Start(ctx, code, hostID, models.MemeForgeConfig{Rounds: 2, RerollsPerPlayer: 1})
	require.NoError(t, err)

	playRound := func(votes map[uuid.UUID]map[uuid.UUID]models.VoteKind) {
		t.Helper()
		assignments, err := store.GetAssignments(ctx, code)
		require.NoError(t, err)
		for _, p := range parts {
			require.NoError(t, e.Submit(ctx, code, p.ID, assignments[p.ID.String()], "caption by "+p.DisplayName))
		}
		for voter, ballots := range votes {
			for target, kind := range ballots {
				require.NoError(t, e.Vote(ctx, code, voter, target.String(), kind))
			}
		}
	}

	// Round 1: everyone loves A, C takes a dislike.
	playRound(map[uuid.UUID]map[uuid.UUID]models.VoteKind{
		b.ID: {a.ID: models.VoteSuperlike, c.ID: models.VoteDislike},
		c.ID: {a.ID: models.VoteLike},
	})
	res, err := e.Advance(ctx, code, hostID)
	require.NoError(t, err)
	require.False(t, res.Finished)
	assert.Equal(t, a.ID, res.Leaderboard[0].ParticipantID)
	assert.Equal(t, 7, res.Leaderboard[0].Score) // +5 +2

	// Round 2: B sweeps.
	playRound(map[uuid.UUID]map[uuid.UUID]models.VoteKind{
		a.ID: {b.ID: models.VoteSuperlike},
		c.ID: {b.ID: models.VoteSuperlike},
	})
	res, err = e.Advance(ctx, code, hostID)
	require.NoError(t, err)
	require.True(t, res.Finished)

	require.Len(t, res.Leaderboard, 3)
	assert.Equal(t, b.ID, res.Leaderboard[0].ParticipantID)
	assert.Equal(t, 10, res.Leaderboard[0].Score)
	assert.Equal(t, a.ID, res.Leaderboard[1].ParticipantID)
	assert.Equal(t, 7, res.Leaderboard[1].Score)
	assert.Equal(t, c.ID, res.Leaderboard[2].ParticipantID)
	assert.Equal(t, -1, res.Leaderboard[2].Score)

	// Terminal state holds.
	_, err = e.Reroll(ctx, code, a.ID)
	assert.ErrorIs(t, err, ErrGameFinished)
	err = e.Submit(ctx, code, a.ID, "seed-01", "too late")
	assert.ErrorIs(t, err, ErrGameFinished)
}
