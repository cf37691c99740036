package chatstore

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/internal/database"
	"github.com/BaSui01/healthgraph/internal/migration"
	"github.com/BaSui01/healthgraph/types"
)

// newTestStore 在临时 SQLite 文件上执行迁移后返回仓储
func newTestStore(t *testing.T) (*Store, *database.PoolManager) {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "chat.db")}

	m, err := migration.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	pool, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return New(pool, zap.NewNop()), pool
}

func TestStore_EnsureUser(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	user, err := store.EnsureUser(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.UserID)
	assert.Equal(t, "alice", user.Username)

	user, err = store.EnsureUser(ctx, 1, " alice2 ")
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)

	_, err = store.EnsureUser(ctx, 2, "alice2")
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	_, err = store.EnsureUser(ctx, 0, "bob")
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	_, err = store.GetUser(ctx, 99)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.CreateSession(ctx, 1, "")
	assert.True(t, types.IsCode(err, types.ErrNotFound), "unknown user")

	_, err = store.EnsureUser(ctx, 1, "alice")
	require.NoError(t, err)

	first, err := store.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionName, first.Name)
	second, err := store.CreateSession(ctx, 1, "sleep")
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.ElementsMatch(t, []int64{first.SessionID, second.SessionID},
		[]int64{sessions[0].SessionID, sessions[1].SessionID})

	none, err := store.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.DeleteSession(ctx, first.SessionID))
	err = store.DeleteSession(ctx, first.SessionID)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestStore_AppendTurnAndHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.EnsureUser(ctx, 1, "alice")
	require.NoError(t, err)
	session, err := store.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(ctx, session.SessionID, "Did I eat rice on 2025-03-01?", "Yes."))
	require.NoError(t, store.AppendTurn(ctx, session.SessionID, "And on the next day?", "No."))

	renamed, err := store.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Did I eat rice on 2025-03-01?", renamed.Name)

	entries, err := store.Messages(ctx, session.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, types.RoleUser, entries[0].Role)
	assert.Equal(t, "Yes.", entries[1].Message)
	assert.Equal(t, "No.", entries[3].Message)

	history, err := store.History(ctx, session.SessionID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.NewUserMessage("And on the next day?").Content, history[0].Content)
	assert.Equal(t, types.RoleAssistant, history[1].Role)

	err = store.AppendTurn(ctx, 999, "q", "a")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
	_, err = store.Messages(ctx, 999, 0)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestStore_DeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	store, pool := newTestStore(t)

	_, err := store.EnsureUser(ctx, 1, "alice")
	require.NoError(t, err)
	_, err = store.EnsureUser(ctx, 2, "bob")
	require.NoError(t, err)
	mine, err := store.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	theirs, err := store.CreateSession(ctx, 2, "")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, mine.SessionID, "q", "a"))
	require.NoError(t, store.AppendTurn(ctx, theirs.SessionID, "q", "a"))

	require.NoError(t, store.DeleteUser(ctx, 1))
	require.NoError(t, store.DeleteUser(ctx, 1), "idempotent")

	var count int64
	require.NoError(t, pool.DB().Model(&HistoryEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, pool.DB().Model(&Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = store.GetUser(ctx, 1)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
	_, err = store.GetUser(ctx, 2)
	assert.NoError(t, err)
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, DefaultSessionName, sessionName("   "))
	assert.Equal(t, "how much water", sessionName("how  much\nwater"))

	long := strings.Repeat("睡眠", 40)
	name := sessionName(long)
	assert.True(t, strings.HasSuffix(name, "..."))
	assert.Equal(t, sessionNameRunes+3, len([]rune(name)))
}

func TestStore_QueryErrorsAreTyped(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)
	pool, err := database.NewPoolManager(gormDB, database.DriverPostgres, database.PoolConfig{MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "chat_sessions"`).WillReturnError(errors.New("relation does not exist"))

	store := New(pool, nil)
	_, err = store.ListSessions(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStoreQuery))

	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, http.StatusInternalServerError, typed.HTTPStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
