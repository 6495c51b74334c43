// internal/session/memory.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/memeleague/memeleague/internal/models"
)

// MemStore is an in-process Store with the same semantics as RedisStore,
// including TTL eviction. It backs single-process deployments (no
// REDIS_ADDR configured) and every test that does not need a live Redis.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	ttl      time.Duration

	// now is swappable so tests can drive TTL expiry.
	now func() time.Time
}

type memSession struct {
	lobby       []byte // serialized, mirroring the store-owned form
	templates   map[string]models.Template
	round       int
	roundSet    bool
	finished    bool
	rerolls     map[string]int
	assignments map[string]string
	submissions map[string]models.Submission
	votes       map[string]models.VoteKind
	scores      map[string]int
	expiresAt   time.Time
}

// NewMemStore returns an empty in-memory store. Pass ttl <= 0 for DefaultTTL.
func NewMemStore(ttl time.Duration) *MemStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live fetches the session for code, evicting it first if its TTL lapsed.
// Caller must hold s.mu.
func (s *MemStore) live(code string) (*memSession, bool) {
	ms, ok := s.sessions[code]
	if !ok {
		return nil, false
	}
	if s.now().After(ms.expiresAt) {
		delete(s.sessions, code)
		return nil, false
	}
	return ms, true
}

// touchLocked refreshes the session's expiry. Caller must hold s.mu.
func (s *MemStore) touchLocked(ms *memSession) {
	ms.expiresAt = s.now().Add(s.ttl)
}

func (s *MemStore) PutLobby(ctx context.Context, lobby *models.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(lobby.Code)
	if !ok {
		ms = &memSession{
			templates:   make(map[string]models.Template),
			rerolls:     make(map[string]int),
			assignments: make(map[string]string),
			submissions: make(map[string]models.Submission),
			votes:       make(map[string]models.VoteKind),
			scores:      make(map[string]int),
		}
		s.sessions[lobby.Code] = ms
	}
	ms.lobby = data
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetLobby(ctx context.Context, code string) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	var lobby models.Lobby
	if err := json.Unmarshal(ms.lobby, &lobby); err != nil {
		return nil, fmt.Errorf("unmarshal lobby %s: %w", code, err)
	}
	return &lobby, nil
}

func (s *MemStore) LobbyExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(code)
	return ok, nil
}

func (s *MemStore) UpdateLobby(ctx context.Context, code string, mutate func(*models.Lobby) error) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	var lobby models.Lobby
	if err := json.Unmarshal(ms.lobby, &lobby); err != nil {
		return nil, fmt.Errorf("unmarshal lobby %s: %w", code, err)
	}
	if err := mutate(&lobby); err != nil {
		return nil, err
	}
	data, err := json.Marshal(&lobby)
	if err != nil {
		return nil, fmt.Errorf("marshal lobby %s: %w", code, err)
	}
	ms.lobby = data
	s.touchLocked(ms)
	return &lobby, nil
}

func (s *MemStore) PutTemplates(ctx context.Context, code string, templates []models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	for _, t := range templates {
		ms.templates[t.ID] = t
	}
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetTemplates(ctx context.Context, code string) (map[string]models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]models.Template, len(ms.templates))
	for id, t := range ms.templates {
		out[id] = t
	}
	return out, nil
}

func (s *MemStore) SetRound(ctx context.Context, code string, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	ms.round = round
	ms.roundSet = true
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetRound(ctx context.Context, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok || !ms.roundSet {
		return 0, ErrNotFound
	}
	return ms.round, nil
}

func (s *MemStore) AdvanceRound(ctx context.Context, code string, from int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok || !ms.roundSet {
		return 0, ErrNotFound
	}
	if ms.round != from {
		return 0, ErrStale
	}
	ms.round = from + 1
	s.touchLocked(ms)
	return ms.round, nil
}

func (s *MemStore) MarkFinished(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return false, ErrNotFound
	}
	if ms.finished {
		return false, nil
	}
	ms.finished = true
	s.touchLocked(ms)
	return true, nil
}

func (s *MemStore) IsFinished(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return false, ErrNotFound
	}
	return ms.finished, nil
}

func (s *MemStore) InitRerolls(ctx context.Context, code string, participantIDs []string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	for _, pid := range participantIDs {
		ms.rerolls[pid] = count
	}
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) RerollsRemaining(ctx context.Context, code, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return 0, ErrNotFound
	}
	n, ok := ms.rerolls[participantID]
	if !ok {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *MemStore) DecrementReroll(ctx context.Context, code, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return 0, ErrNotFound
	}
	n, ok := ms.rerolls[participantID]
	if !ok {
		return 0, ErrNotFound
	}
	if n == 0 {
		return 0, ErrNoRerolls
	}
	ms.rerolls[participantID] = n - 1
	s.touchLocked(ms)
	return n - 1, nil
}

func (s *MemStore) SetAssignment(ctx context.Context, code, participantID, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	ms.assignments[participantID] = templateID
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetAssignments(ctx context.Context, code string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(ms.assignments))
	for pid, tid := range ms.assignments {
		out[pid] = tid
	}
	return out, nil
}

func (s *MemStore) PutSubmission(ctx context.Context, code, participantID string, sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	ms.submissions[participantID] = sub
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetSubmissions(ctx context.Context, code string) (map[string]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]models.Submission, len(ms.submissions))
	for pid, sub := range ms.submissions {
		out[pid] = sub
	}
	return out, nil
}

func (s *MemStore) PutVote(ctx context.Context, code, voterID, submissionID string, kind models.VoteKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	ms.votes[VoteKey(voterID, submissionID)] = kind
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetVotes(ctx context.Context, code string) (map[string]models.VoteKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]models.VoteKind, len(ms.votes))
	for k, v := range ms.votes {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) AddScores(ctx context.Context, code string, deltas map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	for pid, delta := range deltas {
		ms.scores[pid] += delta
	}
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) GetScores(ctx context.Context, code string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]int, len(ms.scores))
	for pid, n := range ms.scores {
		out[pid] = n
	}
	return out, nil
}

func (s *MemStore) ClearRound(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	ms.submissions = make(map[string]models.Submission)
	ms.votes = make(map[string]models.VoteKind)
	ms.assignments = make(map[string]string)
	s.touchLocked(ms)
	return nil
}

func (s *MemStore) Touch(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.live(code)
	if !ok {
		return ErrNotFound
	}
	s.touchLocked(ms)
	return nil
}
