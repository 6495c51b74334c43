// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/memeleague/memeleague/internal/auth"
	"github.com/memeleague/memeleague/internal/hub"
	"github.com/memeleague/memeleague/internal/middleware"
)

// wsInbound is the frame shape clients send: {"type": ..., "payload": ...}.
type wsInbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LobbyWSHandler upgrades /lobby/ws/{code} and streams session events to
// the client while routing its actions through the interpreter.
func (s *Server) LobbyWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/lobby/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing session code", http.StatusBadRequest)
			return
		}
		code := strings.ToUpper(pathParts[0])

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		token := extractCookieToken(r.Header.Get("Cookie"), auth.SessionCookieName)
		guest, err := auth.AuthenticateGuestJWT(token)
		if err != nil {
			s.Logger.Warnf("guest authentication failed for session %s: %v", code, err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}
		guestID, err := uuid.Parse(guest.ID)
		if err != nil {
			c.Close(InvalidGuestIDError, "invalid guest id")
			return
		}

		lobby, err := s.Store.GetLobby(r.Context(), code)
		if err != nil {
			c.Close(UnknownSessionError, "session does not exist")
			return
		}
		if !lobby.IsMember(guestID) {
			c.Close(websocket.StatusPolicyViolation, "join the session before connecting")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sub := hub.NewSubscriber(cancel)

		s.Hub.Subscribe(code, sub)
		// Snapshot first so a reconnecting client is consistent before any
		// deltas arrive.
		s.Hub.Send(code, sub, hub.Event{
			Type: hub.EventParticipantsChanged,
			Payload: map[string]interface{}{
				"participants": lobby.Participants,
				"game_started": lobby.GameStarted,
			},
		})

		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)

		go s.writePump(ctx, c, code, sub)

		readErr := s.readPump(ctx, c, code, sub, guest, guestID)

		s.Hub.Unsubscribe(code, sub)
		cancel()
		// Remaining members get a fresh snapshot so presence views converge.
		if current, err := s.Store.GetLobby(context.Background(), code); err == nil {
			s.Hub.Publish(code, hub.Event{
				Type: hub.EventParticipantsChanged,
				Payload: map[string]interface{}{
					"participants": current.Participants,
					"game_started": current.GameStarted,
				},
			})
		}
		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, readErr)
	}
}

// readPump handles incoming frames until the connection closes. Each frame
// is interpreted against the engine; errors go back to the caller as error
// frames instead of tearing the connection down. All outbound traffic is
// routed through the subscriber outbox so the write pump stays the sole
// socket writer.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, code string, sub *hub.Subscriber, guest auth.Guest, guestID uuid.UUID) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			s.Logger.Warnf("session %s: non-text message type %d from %v, ignoring", code, typ, guestID)
			continue
		}

		var in wsInbound
		if err := json.Unmarshal(msg, &in); err != nil {
			s.Hub.Send(code, sub, errorFrame("invalid JSON format"))
			continue
		}

		out, err := s.Interp.Interpret(ctx, code, guest, guestID, in.Type, in.Payload)
		if err != nil {
			s.Logger.Debugf("session %s: action %q from %v rejected: %v", code, in.Type, guestID, err)
			s.Hub.Send(code, sub, errorFrame(err.Error()))
			continue
		}

		for _, ev := range out.Broadcast {
			s.Hub.Publish(code, ev)
		}
		if out.Reply != nil {
			s.Hub.Send(code, sub, *out.Reply)
		}
	}
}

// errorFrame shapes a rejection as a {"type":"error"} event.
func errorFrame(msg string) hub.Event {
	return hub.Event{Type: "error", Payload: map[string]string{"message": msg}}
}

// writePump drains the subscriber's outbox onto the socket and keeps the
// connection alive with periodic pings.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, code string, sub *hub.Subscriber) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	defer func() {
		_ = c.Close(websocket.StatusGoingAway, "write pump stopping")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Out:
			if !ok {
				// Hub dropped or unsubscribed this connection.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.Logger.Warnf("session %s: failed to marshal outgoing event for %v: %v", code, sub.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.Warnf("session %s: failed to write to websocket for %v: %v", code, sub.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Logger.Warnf("session %s: ping failed for %v, assuming disconnect", code, sub.ID)
				return
			}
		}
	}
}
