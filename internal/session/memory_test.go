// internal/session/memory_test.go
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeleague/memeleague/internal/models"
)

func newLobby(code string) *models.Lobby {
	return &models.Lobby{
		Code:   code,
		HostID: uuid.New(),
		Participants: []models.Participant{
			{ID: uuid.New(), DisplayName: "A", AvatarRef: "a.png"},
		},
	}
}

func TestLobbyRoundTrip(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()

	_, err := s.GetLobby(ctx, "NOPE1")
	assert.ErrorIs(t, err, ErrNotFound)

	lobby := newLobby("ABCDE")
	require.NoError(t, s.PutLobby(ctx, lobby))

	got, err := s.GetLobby(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, lobby.HostID, got.HostID)
	require.Len(t, got.Participants, 1)

	// The returned lobby is a copy; mutating it must not leak into the store.
	got.Participants[0].DisplayName = "mutated"
	again, err := s.GetLobby(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Participants[0].DisplayName)
}

func TestUpdateLobbyMutateError(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))

	_, err := s.UpdateLobby(ctx, "ABCDE", func(l *models.Lobby) error {
		l.GameStarted = true
		return ErrNoRerolls // any domain error aborts the write
	})
	assert.ErrorIs(t, err, ErrNoRerolls)

	got, err := s.GetLobby(ctx, "ABCDE")
	require.NoError(t, err)
	assert.False(t, got.GameStarted, "aborted mutate must not persist")
}

func TestTTLExpiry(t *testing.T) {
	s := NewMemStore(time.Hour)
	ctx := context.Background()

	base := time.Now()
	now := base
	var mu sync.Mutex
	s.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))

	mu.Lock()
	now = base.Add(59 * time.Minute)
	mu.Unlock()
	// Any access refreshes the TTL.
	require.NoError(t, s.Touch(ctx, "ABCDE"))

	mu.Lock()
	now = base.Add(118 * time.Minute)
	mu.Unlock()
	exists, err := s.LobbyExists(ctx, "ABCDE")
	require.NoError(t, err)
	assert.True(t, exists, "touch should have pushed expiry out")

	mu.Lock()
	now = base.Add(5 * time.Hour)
	mu.Unlock()
	_, err = s.GetLobby(ctx, "ABCDE")
	assert.ErrorIs(t, err, ErrNotFound, "expired session must read as missing")
}

func TestAdvanceRoundCompareAndSet(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))
	require.NoError(t, s.SetRound(ctx, "ABCDE", 1))

	next, err := s.AdvanceRound(ctx, "ABCDE", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// A racing advance that read round 1 loses.
	_, err = s.AdvanceRound(ctx, "ABCDE", 1)
	assert.ErrorIs(t, err, ErrStale)

	round, err := s.GetRound(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, 2, round)
}

func TestMarkFinishedOnce(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))

	won, err := s.MarkFinished(ctx, "ABCDE")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.MarkFinished(ctx, "ABCDE")
	require.NoError(t, err)
	assert.False(t, won, "only one caller may win the terminal transition")

	finished, err := s.IsFinished(ctx, "ABCDE")
	require.NoError(t, err)
	assert.True(t, finished)
}

func TestRerollFloor(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))
	require.NoError(t, s.InitRerolls(ctx, "ABCDE", []string{"p1"}, 2))

	n, err := s.DecrementReroll(ctx, "ABCDE", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DecrementReroll(ctx, "ABCDE", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.DecrementReroll(ctx, "ABCDE", "p1")
	assert.ErrorIs(t, err, ErrNoRerolls)

	// The counter never goes below zero.
	remaining, err := s.RerollsRemaining(ctx, "ABCDE", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = s.DecrementReroll(ctx, "ABCDE", "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVoteKeyRoundTrip(t *testing.T) {
	key := VoteKey("voter-1", "sub-1")
	voter, sub, ok := SplitVoteKey(key)
	require.True(t, ok)
	assert.Equal(t, "voter-1", voter)
	assert.Equal(t, "sub-1", sub)

	_, _, ok = SplitVoteKey("garbage")
	assert.False(t, ok)
}

func TestVoteOverwriteAndClearRound(t *testing.T) {
	s := NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.PutLobby(ctx, newLobby("ABCDE")))

	require.NoError(t, s.PutSubmission(ctx, "ABCDE", "p1", models.Submission{TemplateID: "t1", Caption: "hi"}))
	require.NoError(t, s.PutVote(ctx, "ABCDE", "p2", "p1", models.VoteLike))
	require.NoError(t, s.PutVote(ctx, "ABCDE", "p2", "p1", models.VoteDislike))

	votes, err := s.GetVotes(ctx, "ABCDE")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteDislike, votes[VoteKey("p2", "p1")])

	require.NoError(t, s.AddScores(ctx, "ABCDE", map[string]int{"p1": 5}))
	require.NoError(t, s.ClearRound(ctx, "ABCDE"))

	subs, err := s.GetSubmissions(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Empty(t, subs)
	votes, err = s.GetVotes(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Empty(t, votes)

	// Scores survive the round boundary.
	scores, err := s.GetScores(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, 5, scores["p1"])
}
