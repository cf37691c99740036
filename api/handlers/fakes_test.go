package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/internal/chatstore"
	"github.com/BaSui01/healthgraph/rag"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeEvidence struct {
	evidence *rag.Evidence
	err      error
	question string
	userID   int64
	history  []types.Message
}

func (f *fakeEvidence) AnswerEvidence(ctx context.Context, question string, userID int64, history []types.Message) (*rag.Evidence, error) {
	f.question, f.userID, f.history = question, userID, history
	return f.evidence, f.err
}

type fakeAnswers struct {
	answer  *rag.Answer
	err     error
	history []types.Message
}

func (f *fakeAnswers) Answer(ctx context.Context, question string, userID int64, history []types.Message) (*rag.Answer, error) {
	f.history = history
	return f.answer, f.err
}

type fakeWriter struct {
	summary ingest.Summary
	err     error
	deleted []int64
	user    ingest.User
	data    ingest.Datasets
}

func (f *fakeWriter) Ingest(ctx context.Context, user ingest.User, data ingest.Datasets) (ingest.Summary, error) {
	f.user, f.data = user, data
	if f.err != nil {
		return ingest.Summary{}, f.err
	}
	s := f.summary
	s.UserID, s.Username = user.ID, user.Username
	return s, nil
}

func (f *fakeWriter) Delete(ctx context.Context, userID int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeIndexer struct {
	report ingest.IndexReport
	err    error
	calls  int
}

func (f *fakeIndexer) Build(ctx context.Context) (ingest.IndexReport, error) {
	f.calls++
	return f.report, f.err
}

// memChats 内存版 ChatStore
type memChats struct {
	mu       sync.Mutex
	users    map[int64]string
	sessions map[int64]*chatstore.Session
	history  map[int64][]chatstore.HistoryEntry
	nextID   int64
	failWith error
}

func newMemChats() *memChats {
	return &memChats{
		users:    map[int64]string{},
		sessions: map[int64]*chatstore.Session{},
		history:  map[int64][]chatstore.HistoryEntry{},
	}
}

func notFoundErr(what string, id int64) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("%s %d not found", what, id)).WithHTTPStatus(http.StatusNotFound)
}

func (m *memChats) EnsureUser(ctx context.Context, userID int64, username string) (*chatstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.users[userID] = username
	return &chatstore.User{UserID: userID, Username: username}, nil
}

func (m *memChats) DeleteUser(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			delete(m.history, id)
		}
	}
	return nil
}

func (m *memChats) CreateSession(ctx context.Context, userID int64, name string) (*chatstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, notFoundErr("user", userID)
	}
	if name == "" {
		name = chatstore.DefaultSessionName
	}
	m.nextID++
	s := &chatstore.Session{SessionID: m.nextID, UserID: userID, Name: name}
	m.sessions[s.SessionID] = s
	return s, nil
}

func (m *memChats) GetSession(ctx context.Context, sessionID int64) (*chatstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, notFoundErr("session", sessionID)
	}
	return s, nil
}

func (m *memChats) ListSessions(ctx context.Context, userID int64) ([]chatstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []chatstore.Session{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memChats) Messages(ctx context.Context, sessionID int64, limit int) ([]chatstore.HistoryEntry, error) {
	if _, err := m.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[sessionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]chatstore.HistoryEntry(nil), entries...), nil
}

func (m *memChats) History(ctx context.Context, sessionID int64, limit int) ([]types.Message, error) {
	entries, err := m.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.ToMessage())
	}
	return msgs, nil
}

func (m *memChats) AppendTurn(ctx context.Context, sessionID int64, question, answer string) error {
	if _, err := m.GetSession(ctx, sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[sessionID] = append(m.history[sessionID],
		chatstore.HistoryEntry{SessionID: sessionID, Role: types.RoleUser, Message: question},
		chatstore.HistoryEntry{SessionID: sessionID, Role: types.RoleAssistant, Message: answer},
	)
	return nil
}

func (m *memChats) DeleteSession(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return notFoundErr("session", sessionID)
	}
	delete(m.sessions, sessionID)
	delete(m.history, sessionID)
	return nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
