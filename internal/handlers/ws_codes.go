// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used within the lobby handlers.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided guest token was invalid or expired.
	InvalidGuestIDError   = 3002 // Guest ID derived from token was malformed or invalid.
	UnknownSessionError   = 3003 // Target session code in the WS URL does not exist or has expired.
)
