package domain

import "time"

// Mode identifies which conversation surface a session was last saved from.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeAgent Mode = "agent"
)

// Valid reports whether m is a known conversation mode.
func (m Mode) Valid() bool {
	return m == ModeChat || m == ModeAgent
}

// ChatSession is one persisted conversation transcript plus its metadata.
// Messages are in conversational order and are never reordered; a persisted
// session always has at least one message.
type ChatSession struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Mode          Mode      `json:"mode"`
	ModelID       string    `json:"modelId,omitempty"`
	ModelProvider string    `json:"modelProvider,omitempty"`

	// TitlePinned is set by an explicit rename and cleared by title
	// regeneration; while set, saves do not re-derive the title.
	TitlePinned bool `json:"titlePinned,omitempty"`
}
