// internal/session/keys.go
package session

/**
 * Key-format helpers for the session store. Keeps every component building
 * keys through one place instead of repeating fmt.Sprintf format specs.
 */

import "fmt"

func lobbyKey(code string) string {
	return fmt.Sprintf("lobby:%s", code)
}

func templatesKey(code string) string {
	return fmt.Sprintf("lobby:%s:templates", code)
}

func roundKey(code string) string {
	return fmt.Sprintf("lobby:%s:current_round", code)
}

func finishedKey(code string) string {
	return fmt.Sprintf("lobby:%s:finished", code)
}

func rerollsKey(code, participantID string) string {
	return fmt.Sprintf("lobby:%s:rerolls:%s", code, participantID)
}

func assignmentsKey(code string) string {
	return fmt.Sprintf("lobby:%s:assigned", code)
}

func submissionsKey(code string) string {
	return fmt.Sprintf("lobby:%s:submissions", code)
}

func votesKey(code string) string {
	return fmt.Sprintf("lobby:%s:votes", code)
}

func scoresKey(code string) string {
	return fmt.Sprintf("lobby:%s:scores", code)
}
