// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memeleague/memeleague/internal/catalog"
	"github.com/memeleague/memeleague/internal/models"
	"github.com/memeleague/memeleague/internal/session"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 5

	// maxCodeAttempts bounds collision retries on create. With 36^5 live
	// codes the odds of exhausting this are negligible, but collisions are
	// checked, not assumed away.
	maxCodeAttempts = 10

	// MinParticipants is the fewest joined players a game can start with.
	MinParticipants = 2
)

// Engine drives the lobby lifecycle and the round state machine. It owns no
// state of its own: every operation reconstructs the session from the store,
// mutates it, and persists, so any process can serve any session.
type Engine struct {
	store   session.Store
	catalog catalog.Catalog
	logger  *logrus.Logger
}

// New builds an engine around an explicitly passed-in store handle and
// catalog. No hidden globals.
func New(store session.Store, cat catalog.Catalog, logger *logrus.Logger) *Engine {
	return &Engine{store: store, catalog: cat, logger: logger}
}

// StartResult is what a successful game start reports back.
type StartResult struct {
	Lobby *models.Lobby `json:"lobby"`
	// RedirectURL is where clients should navigate to on game_start.
	RedirectURL string `json:"redirect"`
	Round       int    `json:"round"`
	// Assignments maps participant ID to the template dealt for round 1.
	Assignments map[string]models.Template `json:"assignments"`
}

// AdvanceResult reports a round transition. Exactly one of NextRound /
// Finished semantics applies: when Finished is true the leaderboard is
// final, otherwise Assignments holds the next round's deal.
type AdvanceResult struct {
	Finished    bool                       `json:"finished"`
	Round       int                        `json:"round"`
	Leaderboard []models.LeaderboardEntry  `json:"leaderboard"`
	Assignments map[string]models.Template `json:"assignments,omitempty"`
}

// CreateLobby stores a fresh lobby under a newly generated code and returns
// the code. Codes are re-rolled on collision with any live session.
func (e *Engine) CreateLobby(ctx context.Context, hostID uuid.UUID) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateCode()
		exists, err := e.store.LobbyExists(ctx, code)
		if err != nil {
			return "", err
		}
		if exists {
			e.logger.Warnf("lobby code collision on %s, regenerating", code)
			continue
		}
		lobby := &models.Lobby{
			Code:         code,
			HostID:       hostID,
			Participants: []models.Participant{},
		}
		if err := e.store.PutLobby(ctx, lobby); err != nil {
			return "", err
		}
		e.logger.Infof("lobby %s created by host %s", code, hostID)
		return code, nil
	}
	return "", fmt.Errorf("could not generate a unique lobby code after %d attempts", maxCodeAttempts)
}

// Join appends a participant to the lobby. Joining again with the same
// display name is a no-op returning the current lobby, so a reconnecting
// client can replay its join safely.
func (e *Engine) Join(ctx context.Context, code string, p models.Participant) (*models.Lobby, error) {
	if p.DisplayName == "" || p.AvatarRef == "" {
		return nil, fmt.Errorf("%w: display name and avatar are required", ErrForbidden)
	}
	lobby, err := e.store.UpdateLobby(ctx, code, func(l *models.Lobby) error {
		if l.GameStarted {
			return fmt.Errorf("%w: game already started", ErrInvalidState)
		}
		if l.HasParticipant(p.DisplayName) {
			return nil // idempotent re-join
		}
		l.Participants = append(l.Participants, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lobby, nil
}

// View returns the caller's projection of the lobby. Before the game starts
// only members may view; everyone else gets ErrNotMember, which the gateway
// turns into a redirect-to-join rather than a hard error.
func (e *Engine) View(ctx context.Context, code string, callerID uuid.UUID) (*models.LobbyView, error) {
	lobby, err := e.store.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if !lobby.GameStarted && !lobby.IsMember(callerID) {
		return nil, ErrNotMember
	}
	view := &models.LobbyView{
		Code:         lobby.Code,
		Participants: lobby.Participants,
		GameStarted:  lobby.GameStarted,
		IsHost:       lobby.HostID == callerID,
	}
	if view.IsHost {
		view.CanStart = len(lobby.Participants) >= MinParticipants
	}
	if lobby.GameStarted {
		if round, err := e.store.GetRound(ctx, code); err == nil {
			view.CurrentRound = round
		}
	}
	return view, nil
}

// Start flips the lobby into its game phase: validates the host's config,
// selects and loads the template pool, initializes round one, reroll
// budgets, and the first deal. One-way per session lifetime.
func (e *Engine) Start(ctx context.Context, code string, callerID uuid.UUID, cfg models.MemeForgeConfig) (*StartResult, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	lobby, err := e.store.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := startChecks(lobby, callerID); err != nil {
		return nil, err
	}

	// The pool is selected and loaded before the lobby flips to started, so
	// a catalog failure or an unmatchable tag filter leaves the lobby
	// startable again.
	pool, err := e.selectTemplates(ctx, len(lobby.Participants), cfg)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutTemplates(ctx, code, pool); err != nil {
		return nil, err
	}

	lobby, err = e.store.UpdateLobby(ctx, code, func(l *models.Lobby) error {
		if err := startChecks(l, callerID); err != nil {
			return err
		}
		l.GameStarted = true
		l.Gamemode = &cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.SetRound(ctx, code, 1); err != nil {
		return nil, err
	}
	pids := make([]string, len(lobby.Participants))
	for i, p := range lobby.Participants {
		pids[i] = p.ID.String()
	}
	if err := e.store.InitRerolls(ctx, code, pids, cfg.RerollsPerPlayer); err != nil {
		return nil, err
	}
	assignments, err := e.deal(ctx, code, lobby)
	if err != nil {
		return nil, err
	}

	e.logger.Infof("lobby %s started: %d participants, %d rounds, %d templates in pool",
		code, len(lobby.Participants), cfg.Rounds, len(pool))

	return &StartResult{
		Lobby:       lobby,
		RedirectURL: fmt.Sprintf("/game/%s", code),
		Round:       1,
		Assignments: assignments,
	}, nil
}

// Reroll spends one of the participant's rerolls and deals a fresh template
// from the session pool, distinct from the current one where the pool
// permits. A reroll at zero budget fails without ever decrementing, and the
// budget is spent only once a replacement is in hand, so a failed pool read
// costs the participant nothing.
func (e *Engine) Reroll(ctx context.Context, code string, participantID uuid.UUID) (*models.Template, error) {
	lobby, err := e.requireActiveGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, ok := lobby.ParticipantByID(participantID); !ok {
		return nil, fmt.Errorf("%w: not a participant in this game", ErrForbidden)
	}

	pid := participantID.String()
	pool, err := e.store.GetTemplates(ctx, code)
	if err != nil {
		return nil, err
	}
	assignments, err := e.store.GetAssignments(ctx, code)
	if err != nil {
		return nil, err
	}
	tpl, ok := drawDistinct(pool, assignments[pid])
	if !ok {
		return nil, fmt.Errorf("%w: session template pool is empty", ErrInvalidState)
	}

	remaining, err := e.store.DecrementReroll(ctx, code, pid)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetAssignment(ctx, code, pid, tpl.ID); err != nil {
		return nil, err
	}
	e.logger.Debugf("lobby %s: participant %s rerolled to %s (%d left)", code, pid, tpl.ID, remaining)
	return &tpl, nil
}

// Submit upserts the participant's captioned meme for the current round.
// A later submit replaces the earlier one.
func (e *Engine) Submit(ctx context.Context, code string, participantID uuid.UUID, templateID, caption string) error {
	lobby, err := e.requireActiveGame(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := lobby.ParticipantByID(participantID); !ok {
		return fmt.Errorf("%w: not a participant in this game", ErrForbidden)
	}
	if len(caption) > models.MaxCaptionLen {
		return fmt.Errorf("%w: caption exceeds %d characters", ErrInvalidInput, models.MaxCaptionLen)
	}
	pool, err := e.store.GetTemplates(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := pool[templateID]; !ok {
		return fmt.Errorf("%w: template %s is not in this game's pool", ErrInvalidInput, templateID)
	}
	return e.store.PutSubmission(ctx, code, participantID.String(), models.Submission{
		TemplateID: templateID,
		Caption:    caption,
	})
}

// Vote records the voter's take on a submission. One vote per
// (voter, submission) pair; casting again overwrites the earlier vote.
func (e *Engine) Vote(ctx context.Context, code string, voterID uuid.UUID, submissionID string, kind models.VoteKind) error {
	lobby, err := e.requireActiveGame(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := lobby.ParticipantByID(voterID); !ok {
		return fmt.Errorf("%w: not a participant in this game", ErrForbidden)
	}
	subs, err := e.store.GetSubmissions(ctx, code)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: no submissions to vote on yet", ErrInvalidState)
	}
	if _, ok := subs[submissionID]; !ok {
		return fmt.Errorf("%w: unknown submission %s", ErrInvalidInput, submissionID)
	}
	return e.store.PutVote(ctx, code, voterID.String(), submissionID, kind)
}

// Advance tallies the current round and moves the state machine forward:
// either into the next round (submissions/votes cleared, fresh deal) or
// into FINISHED with the final leaderboard. The tally is recomputed from
// the full votes map, never incrementally, so vote overwrites can't double
// count. Racing advances are resolved at the store; the loser gets
// ErrInvalidState and no tally is applied twice.
func (e *Engine) Advance(ctx context.Context, code string, callerID uuid.UUID) (*AdvanceResult, error) {
	lobby, err := e.store.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if !lobby.GameStarted {
		return nil, fmt.Errorf("%w: game has not started", ErrInvalidState)
	}
	// uuid.Nil marks an internal scheduler trigger; everyone else must be
	// the host.
	if callerID != uuid.Nil && callerID != lobby.HostID {
		return nil, fmt.Errorf("%w: only the host can advance the round", ErrForbidden)
	}
	if finished, err := e.store.IsFinished(ctx, code); err != nil {
		return nil, err
	} else if finished {
		return nil, ErrGameFinished
	}

	round, err := e.store.GetRound(ctx, code)
	if err != nil {
		return nil, err
	}
	// Snapshot round data before winning the transition; votes landing
	// after this point count toward nothing, which is acceptable
	// last-write-wins behavior for a closing round.
	subs, err := e.store.GetSubmissions(ctx, code)
	if err != nil {
		return nil, err
	}
	votes, err := e.store.GetVotes(ctx, code)
	if err != nil {
		return nil, err
	}

	if round >= lobby.Gamemode.Rounds {
		won, err := e.store.MarkFinished(ctx, code)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, ErrGameFinished
		}
		if err := e.store.AddScores(ctx, code, tally(subs, votes)); err != nil {
			return nil, err
		}
		board, err := e.Leaderboard(ctx, code)
		if err != nil {
			return nil, err
		}
		e.logger.Infof("lobby %s finished after round %d", code, round)
		return &AdvanceResult{Finished: true, Round: round, Leaderboard: board}, nil
	}

	next, err := e.store.AdvanceRound(ctx, code, round)
	if err != nil {
		if errors.Is(err, session.ErrStale) {
			return nil, fmt.Errorf("%w: round already advanced", ErrInvalidState)
		}
		return nil, err
	}
	if err := e.store.AddScores(ctx, code, tally(subs, votes)); err != nil {
		return nil, err
	}
	if err := e.store.ClearRound(ctx, code); err != nil {
		return nil, err
	}
	assignments, err := e.deal(ctx, code, lobby)
	if err != nil {
		return nil, err
	}
	board, err := e.Leaderboard(ctx, code)
	if err != nil {
		return nil, err
	}
	e.logger.Infof("lobby %s advanced to round %d", code, next)
	return &AdvanceResult{Round: next, Leaderboard: board, Assignments: assignments}, nil
}

// Leaderboard returns cumulative scores sorted descending; ties keep join
// order, first joined first.
func (e *Engine) Leaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error) {
	lobby, err := e.store.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	scores, err := e.store.GetScores(ctx, code)
	if err != nil {
		return nil, err
	}
	board := make([]models.LeaderboardEntry, 0, len(lobby.Participants))
	for _, p := range lobby.Participants {
		board = append(board, models.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         scores[p.ID.String()],
		})
	}
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board, nil
}

// startChecks holds the preconditions for starting a game. Checked once
// before pool selection so a doomed start touches nothing, and again inside
// the lobby CAS so a racing start cannot slip through.
func startChecks(l *models.Lobby, callerID uuid.UUID) error {
	if l.HostID != callerID {
		return fmt.Errorf("%w: only the host can start the game", ErrForbidden)
	}
	if l.GameStarted {
		return fmt.Errorf("%w: game already started", ErrInvalidState)
	}
	if len(l.Participants) < MinParticipants {
		return fmt.Errorf("%w: need at least %d participants", ErrInvalidState, MinParticipants)
	}
	return nil
}

// requireActiveGame loads the lobby and rejects calls against sessions that
// have not started or have already finished.
func (e *Engine) requireActiveGame(ctx context.Context, code string) (*models.Lobby, error) {
	lobby, err := e.store.GetLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if !lobby.GameStarted {
		return nil, fmt.Errorf("%w: game has not started", ErrInvalidState)
	}
	finished, err := e.store.IsFinished(ctx, code)
	if err != nil {
		return nil, err
	}
	if finished {
		return nil, ErrGameFinished
	}
	return lobby, nil
}

// selectTemplates pulls the tag-filtered catalog and sizes the session pool:
// participants x rounds x rerolls, floored at one template per assignment
// slot so a zero-reroll game still has something to deal. If the catalog
// can't cover that, the whole filtered set is used and duplicates across
// rounds are accepted.
func (e *Engine) selectTemplates(ctx context.Context, participants int, cfg models.MemeForgeConfig) ([]models.Template, error) {
	all, err := e.catalog.FilterByTags(ctx, cfg.TemplateTags)
	if err != nil {
		return nil, fmt.Errorf("template catalog lookup: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no templates match tags %v", ErrInvalidInput, cfg.TemplateTags)
	}
	required := participants * cfg.Rounds * cfg.RerollsPerPlayer
	if floor := participants * cfg.Rounds; required < floor {
		required = floor
	}
	if len(all) <= required {
		return all, nil
	}
	shuffled := make([]models.Template, len(all))
	copy(shuffled, all)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:required], nil
}

// deal assigns a random template from the pool to every participant and
// records the assignments.
func (e *Engine) deal(ctx context.Context, code string, lobby *models.Lobby) (map[string]models.Template, error) {
	pool, err := e.store.GetTemplates(ctx, code)
	if err != nil {
		return nil, err
	}
	assignments := make(map[string]models.Template, len(lobby.Participants))
	for _, p := range lobby.Participants {
		tpl, ok := drawDistinct(pool, "")
		if !ok {
			return nil, fmt.Errorf("%w: session template pool is empty", ErrInvalidState)
		}
		if err := e.store.SetAssignment(ctx, code, p.ID.String(), tpl.ID); err != nil {
			return nil, err
		}
		assignments[p.ID.String()] = tpl
	}
	return assignments, nil
}

// drawDistinct picks a random template from the pool, avoiding exclude when
// more than one candidate exists.
func drawDistinct(pool map[string]models.Template, exclude string) (models.Template, bool) {
	candidates := make([]models.Template, 0, len(pool))
	for id, t := range pool {
		if id == exclude && len(pool) > 1 {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return models.Template{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// tally recomputes per-participant score deltas from the final votes map.
// Submission IDs are the owning participant's ID, so each vote credits the
// submission owner directly.
func tally(subs map[string]models.Submission, votes map[string]models.VoteKind) map[string]int {
	deltas := make(map[string]int)
	for key, kind := range votes {
		_, submissionID, ok := session.SplitVoteKey(key)
		if !ok {
			continue
		}
		if _, ok := subs[submissionID]; !ok {
			continue // vote for a submission that no longer exists
		}
		deltas[submissionID] += kind.ScoreDelta()
	}
	return deltas
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
