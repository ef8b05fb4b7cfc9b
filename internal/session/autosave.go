package session

import (
	"sync"
	"time"

	"github.com/jswain/chatvault/internal/domain"
	"github.com/jswain/chatvault/internal/logging"
)

// State is the autosave coordinator's lifecycle state.
type State string

const (
	StateIdle            State = "idle"
	StatePendingUserEdit State = "pending-user-edit"
	StateSaving          State = "saving"
	StateError           State = "error"
)

// Saver persists a transcript and returns the session id, or "" on failure.
type Saver interface {
	SaveSession(messages []domain.Message, mode domain.Mode, modelID, modelProvider, existingID string) string
}

// AutosaverConfig controls when the coordinator persists a conversation.
type AutosaverConfig struct {
	// DebounceInterval delays the save after a user-turn change until no
	// further change arrives. Default: 500ms.
	DebounceInterval time.Duration

	// RetryDelay is the fixed wait before the single retry of a failed
	// save. Default: 2 seconds.
	RetryDelay time.Duration

	// OnSaved, when set, is invoked with the session id after every
	// successful persist, including debounced, retried and teardown saves.
	// It is called without the coordinator's lock held.
	OnSaved func(sessionID string)
}

// messageSnap is the change-detection fingerprint of one message.
type messageSnap struct {
	role    string
	content string
}

// Autosaver decides when a continuously mutating message list is persisted:
// immediately when the last message is an assistant turn, debounced when it
// is a user turn, and flushed once on Close. One Autosaver serves one open
// conversation; saves for that conversation are serialized through it.
type Autosaver struct {
	cfg  AutosaverConfig
	repo Saver
	log  *logging.Logger

	mu         sync.Mutex
	mode       domain.Mode
	modelID    string
	provider   string
	sessionID  string
	state      State
	pending    []domain.Message
	lastSaved  []messageSnap
	timer      *time.Timer
	retryTimer *time.Timer
	retried    bool
	closed     bool
}

// NewAutosaver creates a coordinator for a single open conversation.
func NewAutosaver(repo Saver, mode domain.Mode, log *logging.Logger, cfg AutosaverConfig) *Autosaver {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 500 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Autosaver{
		cfg:   cfg,
		repo:  repo,
		log:   log.Sub("autosave"),
		mode:  mode,
		state: StateIdle,
	}
}

// SetModel updates the conversation's mode and model provenance used for
// subsequent saves.
func (a *Autosaver) SetModel(mode domain.Mode, modelID, modelProvider string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = mode
	a.modelID = modelID
	a.provider = modelProvider
}

// SessionID returns the persisted session id, or "" before the first
// successful save.
func (a *Autosaver) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// State returns the coordinator's current state.
func (a *Autosaver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnChange observes the conversation's current message list. Pure re-renders
// (no role or content difference against the last saved snapshot) are
// ignored. An assistant-final list is saved immediately, cancelling any
// pending debounce; anything else (re)starts the debounce timer.
func (a *Autosaver) OnChange(messages []domain.Message) {
	a.notify(a.observe(messages))
}

func (a *Autosaver) observe(messages []domain.Message) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || len(messages) == 0 {
		return ""
	}
	if !a.changedLocked(messages) {
		return ""
	}

	// The caller keeps mutating its list while streaming; snapshot it.
	a.pending = make([]domain.Message, len(messages))
	copy(a.pending, messages)

	a.cancelRetryLocked()

	if messages[len(messages)-1].Role == domain.RoleAssistant {
		// A completed assistant turn is the worst thing to lose; persist
		// without waiting out the debounce.
		a.cancelTimerLocked()
		return a.saveLocked(true)
	}

	a.state = StatePendingUserEdit
	a.cancelTimerLocked()
	a.timer = time.AfterFunc(a.cfg.DebounceInterval, a.onDebounceExpired)
	return ""
}

// Close cancels any pending timer and makes one best-effort synchronous
// flush of unsaved changes. Flush failure is logged, never propagated.
func (a *Autosaver) Close() {
	a.notify(a.closeAndFlush())
}

func (a *Autosaver) closeAndFlush() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ""
	}
	a.closed = true
	a.cancelTimerLocked()
	a.cancelRetryLocked()

	if a.state != StateIdle && len(a.pending) > 0 {
		return a.saveLocked(false)
	}
	return ""
}

func (a *Autosaver) onDebounceExpired() {
	a.notify(a.debounceSave())
}

func (a *Autosaver) debounceSave() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.state != StatePendingUserEdit {
		return ""
	}
	return a.saveLocked(true)
}

// saveLocked performs one save attempt and returns the session id, or "" on
// failure. allowRetry schedules the single fixed-delay retry on failure; the
// teardown flush passes false.
func (a *Autosaver) saveLocked(allowRetry bool) string {
	a.state = StateSaving

	id := a.repo.SaveSession(a.pending, a.mode, a.modelID, a.provider, a.sessionID)
	if id == "" {
		a.state = StateError
		a.log.Warn().Str("session", a.sessionID).Msg("autosave failed")
		if allowRetry && !a.retried {
			a.retried = true
			a.retryTimer = time.AfterFunc(a.cfg.RetryDelay, a.onRetry)
		}
		return ""
	}

	a.sessionID = id
	a.lastSaved = snapshot(a.pending)
	a.state = StateIdle
	a.retried = false
	return id
}

// onRetry is the single retry after a failed save. A second failure leaves
// the coordinator in Error until the next change.
func (a *Autosaver) onRetry() {
	a.notify(a.retrySave())
}

func (a *Autosaver) retrySave() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.state != StateError {
		return ""
	}
	return a.saveLocked(false)
}

// notify reports a successful persist to the configured callback.
func (a *Autosaver) notify(id string) {
	if id != "" && a.cfg.OnSaved != nil {
		a.cfg.OnSaved(id)
	}
}

// changedLocked reports whether the list differs from the last saved
// snapshot in count, or in role or content at any shared index.
func (a *Autosaver) changedLocked(messages []domain.Message) bool {
	if len(messages) != len(a.lastSaved) {
		return true
	}
	for i, m := range messages {
		if m.Role != a.lastSaved[i].role || m.Content != a.lastSaved[i].content {
			return true
		}
	}
	return false
}

func (a *Autosaver) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Autosaver) cancelRetryLocked() {
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
	a.retried = false
}

func snapshot(messages []domain.Message) []messageSnap {
	snaps := make([]messageSnap, len(messages))
	for i, m := range messages {
		snaps[i] = messageSnap{role: m.Role, content: m.Content}
	}
	return snaps
}
