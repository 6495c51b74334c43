// internal/models/template.go
package models

// Template is one captioned-image asset from the read-only catalog. The
// selected pool is copied into session-scoped storage at game start and is
// the only template source for the rest of the game.
type Template struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ImageURL       string   `json:"image_url"`
	TextInputCount int      `json:"text_input_count"`
	Tags           []string `json:"tags,omitempty"`
}
