package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jswain/chatvault/internal/domain"
	"github.com/jswain/chatvault/internal/logging"
	"github.com/jswain/chatvault/internal/storage"
)

// tickingClock hands out strictly increasing times, one second apart.
type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func testRepo(t *testing.T, opts ...RepositoryOption) (*Repository, *storage.MemoryKV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	clock := &tickingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]RepositoryOption{WithClock(clock.Now)}, opts...)
	return NewRepository(kv, logging.New(nil, "silent", "json"), opts...), kv
}

func userMsg(content string) domain.Message {
	return domain.Message{ID: "u-" + content, Role: domain.RoleUser, Content: content}
}

func assistantMsg(content string) domain.Message {
	return domain.Message{ID: "a-" + content, Role: domain.RoleAssistant, Content: content}
}

func TestSaveSession_RoundTrip(t *testing.T) {
	repo, _ := testRepo(t)

	msgs := []domain.Message{userMsg("hello"), assistantMsg("hi there")}
	id := repo.SaveSession(msgs, domain.ModeChat, "gpt-4o", "openai", "")
	require.NotEmpty(t, id)

	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.ModeChat, got.Mode)
	assert.Equal(t, "gpt-4o", got.ModelID)
	assert.Equal(t, "openai", got.ModelProvider)
	assert.Equal(t, "hello", got.Title)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	require.Len(t, got.Messages, 2)
	for i, m := range got.Messages {
		assert.Equal(t, msgs[i].ID, m.ID)
		assert.Equal(t, msgs[i].Role, m.Role)
		assert.Equal(t, msgs[i].Content, m.Content)
		assert.Equal(t, "gpt-4o", m.ModelID)
		assert.Equal(t, "openai", m.ModelProvider)
		assert.False(t, m.CreatedAt.IsZero())
	}
}

func TestSaveSession_ConcurrentSaversKeepEverySession(t *testing.T) {
	repo := NewRepository(storage.NewMemoryKV(), logging.New(nil, "silent", "json"))

	// One goroutine per open conversation, each creating new sessions,
	// staying under the cap so nothing is evicted.
	const savers, savesEach = 10, 4
	var wg sync.WaitGroup
	for g := 0; g < savers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 0; n < savesEach; n++ {
				msgs := []domain.Message{
					userMsg(fmt.Sprintf("g%d-n%d", g, n)),
					assistantMsg("ok"),
				}
				assert.NotEmpty(t, repo.SaveSession(msgs, domain.ModeChat, "", "", ""))
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, repo.ListSessions(), savers*savesEach)
}

func TestSaveSession_EmptyTranscriptIsNoOp(t *testing.T) {
	repo, _ := testRepo(t)

	assert.Empty(t, repo.SaveSession(nil, domain.ModeChat, "", "", ""))
	assert.Empty(t, repo.ListSessions())
}

func TestSaveSession_ExistingIDUpdatesInPlace(t *testing.T) {
	repo, _ := testRepo(t)

	id := repo.SaveSession([]domain.Message{userMsg("hello")}, domain.ModeChat, "gpt-4o", "openai", "")
	require.NotEmpty(t, id)

	msgs := []domain.Message{userMsg("hello"), assistantMsg("hi")}
	id2 := repo.SaveSession(msgs, domain.ModeAgent, "claude-3", "anthropic", id)
	assert.Equal(t, id, id2)

	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, domain.ModeAgent, got.Mode)
	assert.Equal(t, "claude-3", got.ModelID)
	assert.Len(t, got.Messages, 2)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestSaveSession_UnknownExistingIDCreatesNew(t *testing.T) {
	repo, _ := testRepo(t)

	id := repo.SaveSession([]domain.Message{userMsg("hello")}, domain.ModeChat, "", "", "no-such-id")
	require.NotEmpty(t, id)
	assert.NotEqual(t, "no-such-id", id)
	assert.Len(t, repo.ListSessions(), 1)
}

func TestSaveSession_CapEvictsOldest(t *testing.T) {
	repo, _ := testRepo(t)

	ids := make([]string, 0, MaxSessions+1)
	for i := 0; i <= MaxSessions; i++ {
		id := repo.SaveSession([]domain.Message{userMsg(fmt.Sprintf("conversation %d", i))}, domain.ModeChat, "", "", "")
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}

	sessions := repo.ListSessions()
	require.Len(t, sessions, MaxSessions)

	// The first (oldest-by-updatedAt) session was evicted; the rest
	// survive in most-recent-first order.
	listed := make([]string, len(sessions))
	for i, s := range sessions {
		listed[i] = s.ID
	}
	assert.NotContains(t, listed, ids[0])
	for _, id := range ids[1:] {
		assert.Contains(t, listed, id)
	}
	assert.Equal(t, ids[len(ids)-1], listed[0])
}

func TestListSessions_SortedByRecency(t *testing.T) {
	repo, _ := testRepo(t)

	first := repo.SaveSession([]domain.Message{userMsg("first")}, domain.ModeChat, "", "", "")
	second := repo.SaveSession([]domain.Message{userMsg("second")}, domain.ModeChat, "", "", "")

	sessions := repo.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].ID)
	assert.Equal(t, first, sessions[1].ID)

	// Touching the older session moves it back to the front
	repo.SaveSession([]domain.Message{userMsg("first"), assistantMsg("reply")}, domain.ModeChat, "", "", first)
	sessions = repo.ListSessions()
	assert.Equal(t, first, sessions[0].ID)
}

func TestListSessions_EmptyStorage(t *testing.T) {
	repo, _ := testRepo(t)
	assert.Empty(t, repo.ListSessions())
}

func TestListSessions_MalformedTable(t *testing.T) {
	repo, kv := testRepo(t)
	require.NoError(t, kv.Set("chat-sessions", "{not json"))
	assert.Empty(t, repo.ListSessions())
}

func TestListSessions_DropsInvalidRecords(t *testing.T) {
	repo, kv := testRepo(t)

	id := repo.SaveSession([]domain.Message{userMsg("keep me")}, domain.ModeChat, "", "", "")
	require.NotEmpty(t, id)

	// Splice corrupt records into the stored table: one without an id,
	// one with an empty transcript.
	raw, ok := kv.Get("chat-sessions")
	require.True(t, ok)
	corrupted := `[{"id":"","title":"x","messages":[{"id":"m","role":"user","content":"hi"}]},` +
		`{"id":"empty","title":"y","messages":[]},` + raw[1:]
	require.NoError(t, kv.Set("chat-sessions", corrupted))

	sessions := repo.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
}

func TestGetSession(t *testing.T) {
	repo, _ := testRepo(t)

	id := repo.SaveSession([]domain.Message{userMsg("hello")}, domain.ModeChat, "", "", "")

	got, ok := repo.GetSession(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)

	_, ok = repo.GetSession("missing")
	assert.False(t, ok)
}

func TestDeleteSession(t *testing.T) {
	repo, _ := testRepo(t)

	first := repo.SaveSession([]domain.Message{userMsg("first")}, domain.ModeChat, "", "", "")
	second := repo.SaveSession([]domain.Message{userMsg("second")}, domain.ModeChat, "", "", "")
	third := repo.SaveSession([]domain.Message{userMsg("third")}, domain.ModeChat, "", "", "")

	repo.DeleteSession(second)

	sessions := repo.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, third, sessions[0].ID)
	assert.Equal(t, first, sessions[1].ID)

	// Deleting an unknown id is a no-op
	repo.DeleteSession("missing")
	assert.Len(t, repo.ListSessions(), 2)
}

func TestClearAll(t *testing.T) {
	repo, _ := testRepo(t)

	repo.SaveSession([]domain.Message{userMsg("one")}, domain.ModeChat, "", "", "")
	repo.SaveSession([]domain.Message{userMsg("two")}, domain.ModeChat, "", "", "")

	repo.ClearAll()
	assert.Empty(t, repo.ListSessions())
}

func TestUpdateTitle_PinsAcrossSaves(t *testing.T) {
	repo, _ := testRepo(t)

	msgs := []domain.Message{userMsg("original question")}
	id := repo.SaveSession(msgs, domain.ModeChat, "", "", "")

	require.True(t, repo.UpdateTitle(id, "Foo"))

	got, ok := repo.GetSession(id)
	require.True(t, ok)
	assert.Equal(t, "Foo", got.Title)

	// A later save with unchanged messages must not revert the rename
	repo.SaveSession(msgs, domain.ModeChat, "", "", id)
	got, _ = repo.GetSession(id)
	assert.Equal(t, "Foo", got.Title)

	// Nor does a save with a grown transcript
	repo.SaveSession(append(msgs, assistantMsg("answer")), domain.ModeChat, "", "", id)
	got, _ = repo.GetSession(id)
	assert.Equal(t, "Foo", got.Title)
}

func TestUpdateTitle_UnknownID(t *testing.T) {
	repo, _ := testRepo(t)
	assert.False(t, repo.UpdateTitle("missing", "Foo"))
}

type stubGenerator struct {
	title string
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, conversation string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.title, nil
}

func TestRegenerateTitle_UsesGeneratorAndUnpins(t *testing.T) {
	gen := &stubGenerator{title: "Quantum Basics"}
	repo, _ := testRepo(t, WithTitleGenerator(gen))

	msgs := []domain.Message{userMsg("explain quantum computing")}
	id := repo.SaveSession(msgs, domain.ModeChat, "", "", "")
	require.True(t, repo.UpdateTitle(id, "Renamed"))

	title, err := repo.RegenerateTitle(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Quantum Basics", title)
	assert.Equal(t, 1, gen.calls)

	// Regeneration unpins: the next save re-derives from the transcript
	repo.SaveSession(msgs, domain.ModeChat, "", "", id)
	got, _ := repo.GetSession(id)
	assert.Equal(t, "explain quantum computing", got.Title)
}

func TestRegenerateTitle_GeneratorFailureKeepsTitle(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream unavailable")}
	repo, _ := testRepo(t, WithTitleGenerator(gen))

	id := repo.SaveSession([]domain.Message{userMsg("explain quantum computing")}, domain.ModeChat, "", "", "")

	_, err := repo.RegenerateTitle(context.Background(), id)
	require.Error(t, err)

	got, _ := repo.GetSession(id)
	assert.Equal(t, "explain quantum computing", got.Title)
}

func TestRegenerateTitle_FallsBackToDeriver(t *testing.T) {
	repo, _ := testRepo(t)

	id := repo.SaveSession([]domain.Message{userMsg("short question")}, domain.ModeChat, "", "", "")
	require.True(t, repo.UpdateTitle(id, "Renamed"))

	title, err := repo.RegenerateTitle(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "short question", title)
}

func TestRegenerateTitle_UnknownID(t *testing.T) {
	repo, _ := testRepo(t)
	_, err := repo.RegenerateTitle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// failingKV rejects every write.
type failingKV struct {
	storage.KV
}

func (f *failingKV) Set(key, value string) error {
	return errors.New("quota exceeded")
}

func TestSaveSession_StorageFailureReturnsEmptyID(t *testing.T) {
	kv := &failingKV{KV: storage.NewMemoryKV()}
	repo := NewRepository(kv, logging.New(nil, "silent", "json"))

	id := repo.SaveSession([]domain.Message{userMsg("hello")}, domain.ModeChat, "", "", "")
	assert.Empty(t, id)
	assert.Empty(t, repo.ListSessions())
}

func TestSaveSession_DoesNotMutateCallerMessages(t *testing.T) {
	repo, _ := testRepo(t)

	msgs := []domain.Message{userMsg("hello")}
	repo.SaveSession(msgs, domain.ModeChat, "gpt-4o", "openai", "")

	assert.Empty(t, msgs[0].ModelID)
	assert.True(t, msgs[0].CreatedAt.IsZero())
}
