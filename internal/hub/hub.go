// internal/hub/hub.go
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event kinds pushed to session subscribers.
const (
	EventParticipantsChanged = "participants_changed"
	EventGameStart           = "game_start"
	EventRoundStarted        = "round_started"
	EventSubmissionReceived  = "submission_received"
	EventLeaderboardUpdate   = "leaderboard_update"
	EventGameFinished        = "game_finished"
)

// Event is one state-change notification, JSON-shaped as {type, payload}.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Subscriber is one connected client's outbound queue for a session.
type Subscriber struct {
	ID uuid.UUID
	// Out receives events until the subscriber is dropped; the hub closes
	// it on unsubscribe or when the queue backs up.
	Out chan Event
	// Cancel tears down the goroutines serving this subscriber.
	Cancel func()
}

// NewSubscriber allocates a subscriber with a buffered outbox.
func NewSubscriber(cancel func()) *Subscriber {
	return &Subscriber{
		ID:     uuid.New(),
		Out:    make(chan Event, 16),
		Cancel: cancel,
	}
}

// Hub fans state-change events out to every client subscribed to a session
// code. Delivery is push-only, at-least-once per live connection, in the
// order the server issued sends; nothing is persisted, so a reconnecting
// client relies on the snapshot it gets on subscribe.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*Subscriber]struct{}
	logger   *logrus.Logger
}

// New returns an empty hub.
func New(logger *logrus.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Subscriber]struct{}),
		logger:   logger,
	}
}

// Subscribe registers sub under code. The caller is expected to follow up
// immediately with a full participants snapshot so late joiners start
// consistent instead of waiting for the next delta.
func (h *Hub) Subscribe(code string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[code]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.sessions[code] = subs
	}
	subs[sub] = struct{}{}
	h.logger.Debugf("hub: subscriber %s joined session %s (%d connected)", sub.ID, code, len(subs))
}

// Unsubscribe deregisters sub and closes its outbox. Safe to call for a
// subscriber the hub already dropped.
func (h *Hub) Unsubscribe(code string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[code]
	if !ok {
		return
	}
	if _, present := subs[sub]; !present {
		return
	}
	delete(subs, sub)
	close(sub.Out)
	if len(subs) == 0 {
		delete(h.sessions, code)
	}
	h.logger.Debugf("hub: subscriber %s left session %s (%d remaining)", sub.ID, code, len(subs))
}

// Publish delivers ev to every subscriber of code. Sends never block: a
// subscriber whose queue is full is dropped and its channel closed, the
// same way the write side would observe a dead connection.
func (h *Hub) Publish(code string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.sessions[code]
	for sub := range subs {
		select {
		case sub.Out <- ev:
		default:
			h.logger.Warnf("hub: subscriber %s on session %s too slow, dropping", sub.ID, code)
			delete(subs, sub)
			close(sub.Out)
			if sub.Cancel != nil {
				sub.Cancel()
			}
		}
	}
	if len(subs) == 0 {
		delete(h.sessions, code)
	}
}

// Send queues ev for a single subscriber, dropping it if its queue is full.
// Used for the initial snapshot on connect.
func (h *Hub) Send(code string, sub *Subscriber, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[code]
	if !ok {
		return
	}
	if _, present := subs[sub]; !present {
		return
	}
	select {
	case sub.Out <- ev:
	default:
		h.logger.Warnf("hub: subscriber %s on session %s too slow, dropping", sub.ID, code)
		delete(subs, sub)
		close(sub.Out)
		if sub.Cancel != nil {
			sub.Cancel()
		}
	}
}

// NumSubscribers reports how many clients are connected to a session.
func (h *Hub) NumSubscribers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[code])
}
