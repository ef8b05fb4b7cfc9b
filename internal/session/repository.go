// Package session implements the chat session store: durable CRUD over
// conversation transcripts, title derivation, and the autosave coordinator
// that decides when an in-progress conversation is persisted.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jswain/chatvault/internal/domain"
	"github.com/jswain/chatvault/internal/logging"
	"github.com/jswain/chatvault/internal/storage"
)

const (
	// MaxSessions caps the stored table; saving past the cap evicts the
	// oldest sessions by updatedAt.
	MaxSessions = 50

	// storageKey is the single KV slot holding the whole session table.
	storageKey = "chat-sessions"
)

// ErrSessionNotFound is returned by title operations on an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// TitleGenerator produces a conversation title from a flattened transcript.
type TitleGenerator interface {
	Generate(ctx context.Context, conversation string) (string, error)
}

// Repository is the single write path for chat sessions. The entire table is
// read and rewritten on every operation, so a mutex serializes every
// load-modify-store cycle; concurrent callers (one autosaver per open
// connection) would otherwise overwrite each other's writes. A failed write
// never partially overwrites previous state. Read operations degrade to empty
// results and write operations return an empty id on failure, so callers must
// treat an empty returned id as a failed save.
type Repository struct {
	kv     storage.KV
	log    *logging.Logger
	now    func() time.Time
	titler TitleGenerator

	mu sync.Mutex
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) { r.now = now }
}

// WithTitleGenerator sets the external title-generation collaborator used by
// RegenerateTitle. Without one, titles are re-derived from the transcript.
func WithTitleGenerator(g TitleGenerator) RepositoryOption {
	return func(r *Repository) { r.titler = g }
}

// NewRepository creates a session repository over the given store.
func NewRepository(kv storage.KV, log *logging.Logger, opts ...RepositoryOption) *Repository {
	r := &Repository{
		kv:  kv,
		log: log.Sub("repository"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListSessions returns all stored sessions, newest first by updatedAt.
// Missing or unreadable storage yields an empty list, never an error.
func (r *Repository) ListSessions() []domain.ChatSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// GetSession returns the session with the given id.
func (r *Repository) GetSession(id string) (domain.ChatSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.load() {
		if s.ID == id {
			return s, true
		}
	}
	return domain.ChatSession{}, false
}

// SaveSession persists a transcript. An empty transcript is never written
// and returns "". With a matching existingID the stored session is updated
// in place; otherwise a new session is created (evicting the oldest past
// the cap). Returns the session id, or "" if the write failed.
func (r *Repository) SaveSession(messages []domain.Message, mode domain.Mode, modelID, modelProvider, existingID string) string {
	if len(messages) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	sessions := r.load()
	stamped := stampMessages(messages, modelID, modelProvider, now)

	id := ""
	if existingID != "" {
		for i := range sessions {
			if sessions[i].ID != existingID {
				continue
			}
			s := &sessions[i]
			s.Messages = stamped
			s.Mode = mode
			s.ModelID = modelID
			s.ModelProvider = modelProvider
			s.UpdatedAt = laterOf(now, s.UpdatedAt)
			if !s.TitlePinned {
				s.Title = DeriveTitle(stamped)
			}
			id = existingID
			break
		}
	}

	if id == "" {
		fresh := domain.ChatSession{
			ID:            uuid.New().String(),
			Title:         DeriveTitle(stamped),
			Messages:      stamped,
			CreatedAt:     now,
			UpdatedAt:     now,
			Mode:          mode,
			ModelID:       modelID,
			ModelProvider: modelProvider,
		}
		sessions = append([]domain.ChatSession{fresh}, sessions...)
		id = fresh.ID
	}

	sortByRecency(sessions)
	if len(sessions) > MaxSessions {
		evicted := len(sessions) - MaxSessions
		sessions = sessions[:MaxSessions]
		r.log.Debug().Int("evicted", evicted).Msg("session cap reached")
	}

	if err := r.store(sessions); err != nil {
		r.log.Error().Err(err).Str("session", id).Msg("failed to save session")
		return ""
	}
	return id
}

// DeleteSession removes the session with the given id. Unknown ids are a
// no-op; other sessions and their relative order are untouched.
func (r *Repository) DeleteSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.load()
	kept := slices.DeleteFunc(sessions, func(s domain.ChatSession) bool {
		return s.ID == id
	})
	if len(kept) == len(sessions) {
		return
	}
	if err := r.store(kept); err != nil {
		r.log.Error().Err(err).Str("session", id).Msg("failed to delete session")
	}
}

// ClearAll removes every stored session.
func (r *Repository) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.kv.Remove(storageKey); err != nil {
		r.log.Error().Err(err).Msg("failed to clear sessions")
	}
}

// UpdateTitle overwrites a session's title with an explicit user rename and
// pins it so later saves do not re-derive it. Returns false for an unknown
// id or a failed write.
func (r *Repository) UpdateTitle(id, title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.load()
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		sessions[i].Title = title
		sessions[i].TitlePinned = true
		sessions[i].UpdatedAt = laterOf(r.now(), sessions[i].UpdatedAt)
		if err := r.store(sessions); err != nil {
			r.log.Error().Err(err).Str("session", id).Msg("failed to update title")
			return false
		}
		return true
	}
	return false
}

// RegenerateTitle recomputes a session's title from its own transcript,
// delegating to the configured title generator when one is present. The
// regenerated title is unpinned. On generator failure the stored title is
// left unchanged and the error is returned.
func (r *Repository) RegenerateTitle(ctx context.Context, id string) (string, error) {
	// The generator call can block on the network, so it runs outside the
	// table lock against a transcript snapshot.
	sess, ok := r.GetSession(id)
	if !ok {
		return "", ErrSessionNotFound
	}

	title := ""
	if r.titler != nil {
		generated, err := r.titler.Generate(ctx, flattenTranscript(sess.Messages))
		if err != nil {
			return "", err
		}
		title = strings.TrimSpace(generated)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.load()
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		if title == "" {
			title = DeriveTitle(sessions[i].Messages)
		}
		sessions[i].Title = title
		sessions[i].TitlePinned = false
		sessions[i].UpdatedAt = laterOf(r.now(), sessions[i].UpdatedAt)
		if err := r.store(sessions); err != nil {
			r.log.Error().Err(err).Str("session", id).Msg("failed to store regenerated title")
			return "", err
		}
		return title, nil
	}
	return "", ErrSessionNotFound
}

// load reads and validates the whole session table; callers hold r.mu.
// Malformed storage or records that do not hydrate into a valid ChatSession
// are dropped with a log line rather than surfaced.
func (r *Repository) load() []domain.ChatSession {
	raw, ok := r.kv.Get(storageKey)
	if !ok || raw == "" {
		return nil
	}

	var stored []domain.ChatSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		r.log.Error().Err(err).Msg("failed to decode session table")
		return nil
	}

	sessions := stored[:0]
	for _, s := range stored {
		if !validRecord(s) {
			r.log.Warn().Str("session", s.ID).Msg("dropping malformed session record")
			continue
		}
		if !s.Mode.Valid() {
			s.Mode = domain.ModeChat
		}
		sessions = append(sessions, s)
	}

	sortByRecency(sessions)
	return sessions
}

func (r *Repository) store(sessions []domain.ChatSession) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return r.kv.Set(storageKey, string(data))
}

// validRecord checks the persisted shape: a session without an id or with an
// empty transcript is never legally written, so anything hydrating that way
// is corrupt.
func validRecord(s domain.ChatSession) bool {
	if s.ID == "" || len(s.Messages) == 0 {
		return false
	}
	for _, m := range s.Messages {
		if m.Role == "" {
			return false
		}
	}
	return true
}

// stampMessages copies the transcript, stamping each message with the
// session's provenance and a createdAt. The upstream UI does not supply
// per-message timestamps, so the whole batch shares the call-time now.
func stampMessages(messages []domain.Message, modelID, modelProvider string, now time.Time) []domain.Message {
	stamped := make([]domain.Message, len(messages))
	for i, m := range messages {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.ModelID = modelID
		m.ModelProvider = modelProvider
		stamped[i] = m
	}
	return stamped
}

func sortByRecency(sessions []domain.ChatSession) {
	slices.SortStableFunc(sessions, func(a, b domain.ChatSession) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}

// laterOf keeps updatedAt monotonically non-decreasing even if the clock
// steps backwards between saves.
func laterOf(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// flattenTranscript renders a transcript as role-prefixed lines for the
// title-generation collaborator.
func flattenTranscript(messages []domain.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
