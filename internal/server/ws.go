package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jswain/chatvault/internal/domain"
	"github.com/jswain/chatvault/internal/session"
)

// AutosaveFrame is one snapshot of a conversation's message list, sent by
// the chat client whenever the list changes (including while an assistant
// response is still streaming).
type AutosaveFrame struct {
	Type          string           `json:"type"` // "messages"
	Mode          domain.Mode      `json:"mode,omitempty"`
	ModelID       string           `json:"modelId,omitempty"`
	ModelProvider string           `json:"modelProvider,omitempty"`
	Messages      []domain.Message `json:"messages"`
}

// SavedFrame acknowledges a persisted snapshot with the session id, so the
// client learns the id assigned on first save.
type SavedFrame struct {
	Type      string `json:"type"` // "saved"
	SessionID string `json:"sessionId"`
}

// handleAutosaveSocket runs one autosave coordinator per connection: the
// connection's lifetime is the conversation view's lifetime, and closing it
// triggers the final best-effort flush.
func (s *Server) handleAutosaveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Acks come out of the save-completion callback so debounced and retried
	// persists, which finish between frames on timer goroutines, are
	// acknowledged too. The write mutex keeps those writes off each other.
	var writeMu sync.Mutex
	saver := session.NewAutosaver(s.repo, domain.ModeChat, s.log, session.AutosaverConfig{
		DebounceInterval: time.Duration(s.cfg.Autosave.DebounceMs) * time.Millisecond,
		RetryDelay:       time.Duration(s.cfg.Autosave.RetryDelayMs) * time.Millisecond,
		OnSaved: func(id string) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(SavedFrame{Type: "saved", SessionID: id}); err != nil {
				s.log.Warn().Err(err).Msg("failed to send save ack")
			}
		},
	})
	defer saver.Close()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("autosave connection opened")

	for {
		var frame AutosaveFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("autosave connection dropped")
			}
			return
		}
		if frame.Type != "messages" {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring unknown frame")
			continue
		}

		mode := frame.Mode
		if !mode.Valid() {
			mode = domain.ModeChat
		}
		saver.SetModel(mode, frame.ModelID, frame.ModelProvider)
		saver.OnChange(frame.Messages)
	}
}
