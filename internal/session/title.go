package session

import "github.com/jswain/chatvault/internal/domain"

const (
	// DefaultTitle is used when a transcript has no user turn to derive from.
	DefaultTitle = "New Chat"

	titleMaxLen = 50
)

// DeriveTitle produces a deterministic title from the first user turn of a
// transcript: the first 50 characters, with "..." appended when the content
// was longer. It is the offline fallback for AI-generated titles.
func DeriveTitle(messages []domain.Message) string {
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) <= titleMaxLen {
			return m.Content
		}
		return string(runes[:titleMaxLen]) + "..."
	}
	return DefaultTitle
}
