// internal/engine/errors.go
package engine

import (
	"errors"

	"github.com/memeleague/memeleague/internal/session"
)

// The engine error taxonomy. Every one of these is recoverable and maps to
// a structured response at the gateway; none should take the process down.
var (
	// ErrNotFound: unknown or expired session code.
	ErrNotFound = session.ErrNotFound

	// ErrForbidden: the caller's role does not permit the action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotMember: the caller is not yet part of the session. Surfaced as
	// a redirect-to-join signal, not a hard failure.
	ErrNotMember = errors.New("not a member of this session")

	// ErrInvalidState: the action is illegal for the current round state.
	ErrInvalidState = errors.New("action not valid in current state")

	// ErrInvalidInput: malformed vote kind, out-of-bounds config, etc.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoRerolls: the participant's reroll budget is exhausted.
	ErrNoRerolls = session.ErrNoRerolls

	// ErrGameFinished: the session reached its terminal state; no further
	// mutation is accepted.
	ErrGameFinished = errors.New("game already finished")

	// ErrUnavailable: the session store is unreachable. Retryable and
	// deliberately distinct from ErrNotFound.
	ErrUnavailable = session.ErrUnavailable
)
