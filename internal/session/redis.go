// internal/session/redis.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memeleague/memeleague/internal/models"
)

// casRetries bounds optimistic-transaction retries before giving up with ErrStale.
const casRetries = 3

// decrRerollScript decrements a reroll counter only while it is positive,
// refreshing its TTL on the way. Returns -2 if the counter is missing and
// -1 if it is already exhausted.
var decrRerollScript = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '-1')
if v < 0 then return -2 end
if v == 0 then return -1 end
redis.call('EXPIRE', KEYS[1], ARGV[1])
return redis.call('DECR', KEYS[1])
`)

// RedisStore is the production Store, shared by every server process.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an already-connected client. Pass ttl <= 0 to use
// DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// wrap converts transport-level failures into ErrUnavailable so callers can
// tell an outage apart from an expired session.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

func (s *RedisStore) PutLobby(ctx context.Context, lobby *models.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}
	return wrap("put lobby", s.client.Set(ctx, lobbyKey(lobby.Code), data, s.ttl).Err())
}

func (s *RedisStore) GetLobby(ctx context.Context, code string) (*models.Lobby, error) {
	data, err := s.client.Get(ctx, lobbyKey(code)).Bytes()
	if err != nil {
		return nil, wrap("get lobby", err)
	}
	var lobby models.Lobby
	if err := json.Unmarshal(data, &lobby); err != nil {
		return nil, fmt.Errorf("unmarshal lobby %s: %w", code, err)
	}
	return &lobby, nil
}

func (s *RedisStore) LobbyExists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, lobbyKey(code)).Result()
	if err != nil {
		return false, wrap("lobby exists", err)
	}
	return n > 0, nil
}

func (s *RedisStore) UpdateLobby(ctx context.Context, code string, mutate func(*models.Lobby) error) (*models.Lobby, error) {
	key := lobbyKey(code)
	var updated *models.Lobby

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err // redis.Nil handled by wrap below
		}
		var lobby models.Lobby
		if err := json.Unmarshal(data, &lobby); err != nil {
			return fmt.Errorf("unmarshal lobby %s: %w", code, err)
		}
		if err := mutate(&lobby); err != nil {
			return err
		}
		out, err := json.Marshal(&lobby)
		if err != nil {
			return fmt.Errorf("marshal lobby %s: %w", code, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err == nil {
			updated = &lobby
		}
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, re-read and retry
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		if errors.Is(err, ErrUnavailable) || isMutateError(err) {
			return nil, err
		}
		return nil, wrap("update lobby", err)
	}
	return nil, fmt.Errorf("update lobby %s: %w", code, ErrStale)
}

// isMutateError reports whether err came from the caller's mutate func
// rather than the transport. Domain errors pass through untouched.
func isMutateError(err error) bool {
	return !errors.Is(err, redis.TxFailedErr) &&
		!errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (s *RedisStore) PutTemplates(ctx context.Context, code string, templates []models.Template) error {
	if len(templates) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(templates))
	for _, t := range templates {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal template %s: %w", t.ID, err)
		}
		fields[t.ID] = data
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, templatesKey(code), fields)
		pipe.Expire(ctx, templatesKey(code), s.ttl)
		return nil
	})
	return wrap("put templates", err)
}

func (s *RedisStore) GetTemplates(ctx context.Context, code string) (map[string]models.Template, error) {
	raw, err := s.client.HGetAll(ctx, templatesKey(code)).Result()
	if err != nil {
		return nil, wrap("get templates", err)
	}
	out := make(map[string]models.Template, len(raw))
	for id, data := range raw {
		var t models.Template
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal template %s: %w", id, err)
		}
		out[id] = t
	}
	return out, nil
}

func (s *RedisStore) SetRound(ctx context.Context, code string, round int) error {
	return wrap("set round", s.client.Set(ctx, roundKey(code), round, s.ttl).Err())
}

func (s *RedisStore) GetRound(ctx context.Context, code string) (int, error) {
	n, err := s.client.Get(ctx, roundKey(code)).Int()
	if err != nil {
		return 0, wrap("get round", err)
	}
	return n, nil
}

func (s *RedisStore) AdvanceRound(ctx context.Context, code string, from int) (int, error) {
	key := roundKey(code)
	next := from + 1

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int()
		if err != nil {
			return err
		}
		if current != from {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrStale):
			return 0, ErrStale
		case errors.Is(err, redis.Nil):
			return 0, ErrNotFound
		default:
			return 0, wrap("advance round", err)
		}
	}
	return 0, ErrStale
}

func (s *RedisStore) MarkFinished(ctx context.Context, code string) (bool, error) {
	won, err := s.client.SetNX(ctx, finishedKey(code), 1, s.ttl).Result()
	if err != nil {
		return false, wrap("mark finished", err)
	}
	return won, nil
}

func (s *RedisStore) IsFinished(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, finishedKey(code)).Result()
	if err != nil {
		return false, wrap("is finished", err)
	}
	return n > 0, nil
}

func (s *RedisStore) InitRerolls(ctx context.Context, code string, participantIDs []string, count int) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, pid := range participantIDs {
			pipe.Set(ctx, rerollsKey(code, pid), count, s.ttl)
		}
		return nil
	})
	return wrap("init rerolls", err)
}

func (s *RedisStore) RerollsRemaining(ctx context.Context, code, participantID string) (int, error) {
	n, err := s.client.Get(ctx, rerollsKey(code, participantID)).Int()
	if err != nil {
		return 0, wrap("rerolls remaining", err)
	}
	return n, nil
}

func (s *RedisStore) DecrementReroll(ctx context.Context, code, participantID string) (int, error) {
	ttlSec := int(s.ttl / time.Second)
	n, err := decrRerollScript.Run(ctx, s.client, []string{rerollsKey(code, participantID)}, ttlSec).Int()
	if err != nil {
		return 0, wrap("decrement reroll", err)
	}
	switch n {
	case -2:
		return 0, ErrNotFound
	case -1:
		return 0, ErrNoRerolls
	}
	return n, nil
}

func (s *RedisStore) SetAssignment(ctx context.Context, code, participantID, templateID string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, assignmentsKey(code), participantID, templateID)
		pipe.Expire(ctx, assignmentsKey(code), s.ttl)
		return nil
	})
	return wrap("set assignment", err)
}

func (s *RedisStore) GetAssignments(ctx context.Context, code string) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, assignmentsKey(code)).Result()
	if err != nil {
		return nil, wrap("get assignments", err)
	}
	return out, nil
}

func (s *RedisStore) PutSubmission(ctx context.Context, code, participantID string, sub models.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, submissionsKey(code), participantID, data)
		pipe.Expire(ctx, submissionsKey(code), s.ttl)
		return nil
	})
	return wrap("put submission", err)
}

func (s *RedisStore) GetSubmissions(ctx context.Context, code string) (map[string]models.Submission, error) {
	raw, err := s.client.HGetAll(ctx, submissionsKey(code)).Result()
	if err != nil {
		return nil, wrap("get submissions", err)
	}
	out := make(map[string]models.Submission, len(raw))
	for pid, data := range raw {
		var sub models.Submission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, fmt.Errorf("unmarshal submission for %s: %w", pid, err)
		}
		out[pid] = sub
	}
	return out, nil
}

func (s *RedisStore) PutVote(ctx context.Context, code, voterID, submissionID string, kind models.VoteKind) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, votesKey(code), VoteKey(voterID, submissionID), string(kind))
		pipe.Expire(ctx, votesKey(code), s.ttl)
		return nil
	})
	return wrap("put vote", err)
}

func (s *RedisStore) GetVotes(ctx context.Context, code string) (map[string]models.VoteKind, error) {
	raw, err := s.client.HGetAll(ctx, votesKey(code)).Result()
	if err != nil {
		return nil, wrap("get votes", err)
	}
	out := make(map[string]models.VoteKind, len(raw))
	for k, v := range raw {
		out[k] = models.VoteKind(v)
	}
	return out, nil
}

func (s *RedisStore) AddScores(ctx context.Context, code string, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for pid, delta := range deltas {
			pipe.HIncrBy(ctx, scoresKey(code), pid, int64(delta))
		}
		pipe.Expire(ctx, scoresKey(code), s.ttl)
		return nil
	})
	return wrap("add scores", err)
}

func (s *RedisStore) GetScores(ctx context.Context, code string) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, scoresKey(code)).Result()
	if err != nil {
		return nil, wrap("get scores", err)
	}
	out := make(map[string]int, len(raw))
	for pid, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse score for %s: %w", pid, err)
		}
		out[pid] = n
	}
	return out, nil
}

func (s *RedisStore) ClearRound(ctx context.Context, code string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, submissionsKey(code), votesKey(code), assignmentsKey(code))
		return nil
	})
	return wrap("clear round", err)
}

func (s *RedisStore) Touch(ctx context.Context, code string) error {
	lobby, err := s.GetLobby(ctx, code)
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := []string{
			lobbyKey(code), templatesKey(code), roundKey(code), finishedKey(code),
			assignmentsKey(code), submissionsKey(code), votesKey(code), scoresKey(code),
		}
		for _, p := range lobby.Participants {
			keys = append(keys, rerollsKey(code, p.ID.String()))
		}
		for _, k := range keys {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return wrap("touch", err)
}
