// internal/handlers/guest.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/memeleague/memeleague/internal/auth"
	"github.com/memeleague/memeleague/internal/models"
)

// AvatarRefs is the fixed set of avatars a guest may pick from.
var AvatarRefs = []string{
	"/static/avatars/avatar-01.png",
	"/static/avatars/avatar-02.png",
	"/static/avatars/avatar-03.png",
	"/static/avatars/avatar-04.png",
	"/static/avatars/avatar-05.png",
	"/static/avatars/avatar-06.png",
	"/static/avatars/avatar-07.png",
	"/static/avatars/avatar-08.png",
	"/static/avatars/avatar-09.png",
	"/static/avatars/avatar-10.png",
	"/static/avatars/avatar-11.png",
	"/static/avatars/avatar-12.png",
}

func validAvatarRef(ref string) bool {
	for _, a := range AvatarRefs {
		if a == ref {
			return true
		}
	}
	return false
}

type guestRequest struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
}

type guestResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
}

// GuestHandler mints a guest identity from a chosen display name and avatar
// and sets it as the session cookie. There are no accounts; calling again
// simply replaces the identity.
func (s *Server) GuestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req guestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid guest payload", http.StatusBadRequest)
			return
		}
		req.DisplayName = strings.TrimSpace(req.DisplayName)
		if req.DisplayName == "" {
			http.Error(w, "display_name is required", http.StatusBadRequest)
			return
		}
		if len(req.DisplayName) > models.MaxDisplayNameLen {
			http.Error(w, fmt.Sprintf("display_name must be at most %d characters", models.MaxDisplayNameLen), http.StatusBadRequest)
			return
		}
		if !validAvatarRef(req.AvatarRef) {
			http.Error(w, "unknown avatar_ref", http.StatusBadRequest)
			return
		}

		g := auth.Guest{
			ID:          uuid.New().String(),
			DisplayName: req.DisplayName,
			AvatarRef:   req.AvatarRef,
		}
		token, err := auth.CreateGuestJWT(g)
		if err != nil {
			s.Logger.Errorf("failed to sign guest token: %v", err)
			http.Error(w, "failed to create guest session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TOKEN_EXPIRE_TIME_SEC,
		})

		writeJSON(w, http.StatusCreated, guestResponse{
			ID:          g.ID,
			DisplayName: g.DisplayName,
			AvatarRef:   g.AvatarRef,
		})
	}
}

// AvatarsHandler lists the avatars a client may offer during guest setup.
func (s *Server) AvatarsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"avatars": AvatarRefs})
	}
}

// requireGuest authenticates the session cookie and returns the guest
// identity with its parsed UUID. Missing and invalid tokens both answer
// 403; the response is written here, callers just return on error.
func (s *Server) requireGuest(w http.ResponseWriter, r *http.Request) (auth.Guest, uuid.UUID, bool) {
	cookie := r.Header.Get("Cookie")
	if !strings.Contains(cookie, auth.SessionCookieName+"=") {
		http.Error(w, "missing guest session", http.StatusForbidden)
		return auth.Guest{}, uuid.Nil, false
	}
	token := extractCookieToken(cookie, auth.SessionCookieName)

	g, err := auth.AuthenticateGuestJWT(token)
	if err != nil {
		http.Error(w, "invalid guest session", http.StatusForbidden)
		return auth.Guest{}, uuid.Nil, false
	}
	id, err := uuid.Parse(g.ID)
	if err != nil {
		http.Error(w, "invalid guest id in token", http.StatusForbidden)
		return auth.Guest{}, uuid.Nil, false
	}
	return g, id, true
}
