// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/memeleague/memeleague/internal/engine"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape for every error response.
type errorBody struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// writeError maps an engine error to its HTTP status. The taxonomy is
// deliberate: an unreachable store is 503, never 404, so clients can tell
// an outage from an expired session.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrForbidden), errors.Is(err, engine.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrNoRerolls):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrGameFinished):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
