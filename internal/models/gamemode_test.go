// internal/models/gamemode_test.go
package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDecode(t *testing.T) {
	cfg := DefaultMemeForgeConfig()
	require.NoError(t, json.Unmarshal([]byte(`{}`), &cfg))
	assert.Equal(t, DefaultRounds, cfg.Rounds)
	assert.Equal(t, DefaultRerolls, cfg.RerollsPerPlayer)

	// An explicit zero is a host choice, not an unset field.
	cfg = DefaultMemeForgeConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"rounds":5,"rerolls":0}`), &cfg))
	assert.Equal(t, 5, cfg.Rounds)
	assert.Equal(t, 0, cfg.RerollsPerPlayer)
	assert.Equal(t, DefaultTimeLimitSec, cfg.TimeLimitSec)
}

func TestApplyDefaults(t *testing.T) {
	var cfg MemeForgeConfig
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultRounds, cfg.Rounds)
	assert.Equal(t, DefaultTimeLimitSec, cfg.TimeLimitSec)
	// Zero rerolls is a legitimate host choice, not an unset field.
	assert.Equal(t, 0, cfg.RerollsPerPlayer)

	cfg = MemeForgeConfig{Rounds: 5, TimeLimitSec: 60, RerollsPerPlayer: 2}
	cfg.ApplyDefaults()
	assert.Equal(t, 5, cfg.Rounds)
	assert.Equal(t, 60, cfg.TimeLimitSec)
	assert.Equal(t, 2, cfg.RerollsPerPlayer)
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name string
		cfg  MemeForgeConfig
		ok   bool
	}{
		{"defaults", MemeForgeConfig{Rounds: DefaultRounds, TimeLimitSec: DefaultTimeLimitSec, RerollsPerPlayer: DefaultRerolls}, true},
		{"min edge", MemeForgeConfig{Rounds: MinRounds, TimeLimitSec: MinTimeLimitSec, RerollsPerPlayer: MinRerolls}, true},
		{"max edge", MemeForgeConfig{Rounds: MaxRounds, TimeLimitSec: MaxTimeLimitSec, RerollsPerPlayer: MaxRerolls}, true},
		{"rounds too high", MemeForgeConfig{Rounds: MaxRounds + 1, TimeLimitSec: DefaultTimeLimitSec}, false},
		{"rounds zero", MemeForgeConfig{Rounds: 0, TimeLimitSec: DefaultTimeLimitSec}, false},
		{"time too short", MemeForgeConfig{Rounds: DefaultRounds, TimeLimitSec: MinTimeLimitSec - 1}, false},
		{"rerolls negative", MemeForgeConfig{Rounds: DefaultRounds, TimeLimitSec: DefaultTimeLimitSec, RerollsPerPlayer: -1}, false},
		{"rerolls too high", MemeForgeConfig{Rounds: DefaultRounds, TimeLimitSec: DefaultTimeLimitSec, RerollsPerPlayer: MaxRerolls + 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestVoteKinds(t *testing.T) {
	assert.Equal(t, 2, VoteLike.ScoreDelta())
	assert.Equal(t, 5, VoteSuperlike.ScoreDelta())
	assert.Equal(t, -1, VoteDislike.ScoreDelta())

	kind, err := ParseVoteKind("superlike")
	require.NoError(t, err)
	assert.Equal(t, VoteSuperlike, kind)

	_, err = ParseVoteKind("meh")
	assert.Error(t, err)
	_, err = ParseVoteKind("")
	assert.Error(t, err)
}

func TestGameModeRegistry(t *testing.T) {
	d, ok := GameModeByKey("memeforge")
	require.True(t, ok)
	assert.Equal(t, "MemeForge", d.Name)
	assert.NotEmpty(t, d.Settings)

	_, ok = GameModeByKey("poker")
	assert.False(t, ok)

	assert.Len(t, GameModeList(), 1)
}

func TestLobbyMembership(t *testing.T) {
	host := uuid.New()
	p := Participant{ID: uuid.New(), DisplayName: "Sam", AvatarRef: "a.png"}
	l := &Lobby{Code: "ABCDE", HostID: host, Participants: []Participant{p}}

	assert.True(t, l.HasParticipant("Sam"))
	assert.False(t, l.HasParticipant("Alex"))

	got, ok := l.ParticipantByID(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Sam", got.DisplayName)

	assert.True(t, l.IsMember(host), "host is a member without being a participant")
	assert.True(t, l.IsMember(p.ID))
	assert.False(t, l.IsMember(uuid.New()))
}
