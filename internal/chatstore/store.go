package chatstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/healthgraph/internal/database"
	"github.com/BaSui01/healthgraph/types"
)

// 会话名称取问题前若干个字符
const sessionNameRunes = 50

// Store 聊天记录仓储
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// New 创建仓储，表结构由 internal/migration 维护
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "chatstore"))}
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// =============================================================================
// 👤 用户
// =============================================================================

// EnsureUser 创建用户，已存在时更新用户名
func (s *Store) EnsureUser(ctx context.Context, userID int64, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if userID <= 0 || username == "" {
		return nil, invalid("user_id must be positive and username non-empty")
	}

	user := &User{UserID: userID, Username: username}
	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username"}),
	}).Create(user).Error
	if err != nil {
		return nil, queryError("ensure user", err)
	}
	return s.GetUser(ctx, userID)
}

// GetUser 按 ID 查询用户
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	if err := s.db(ctx).First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, queryError("get user", err)
	}
	return &user, nil
}

// DeleteUser 删除用户及其全部会话和消息。用户不存在时不报错。
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		sessions := tx.Model(&Session{}).Select("session_id").Where("user_id = ?", userID)
		if err := tx.Where("session_id IN (?)", sessions).Delete(&HistoryEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&Session{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&User{}).Error
	})
	if err != nil {
		return queryError("delete user", err)
	}
	s.logger.Info("user chat data deleted", zap.Int64("user_id", userID))
	return nil
}

// =============================================================================
// 💬 会话
// =============================================================================

// CreateSession 为已存在的用户创建会话，name 为空时使用默认名称
func (s *Store) CreateSession(ctx context.Context, userID int64, name string) (*Session, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}
	session := &Session{UserID: userID, Name: name}
	if err := s.db(ctx).Create(session).Error; err != nil {
		return nil, queryError("create session", err)
	}
	return session, nil
}

// GetSession 按 ID 查询会话
func (s *Store) GetSession(ctx context.Context, sessionID int64) (*Session, error) {
	var session Session
	if err := s.db(ctx).First(&session, "session_id = ?", sessionID).Error; err != nil {
		return nil, queryError("get session", err)
	}
	return &session, nil
}

// ListSessions 按创建时间倒序返回用户的会话
func (s *Store) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	var sessions []Session
	err := s.db(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, session_id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, queryError("list sessions", err)
	}
	return sessions, nil
}

// DeleteSession 删除会话及其消息
func (s *Store) DeleteSession(ctx context.Context, sessionID int64) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&HistoryEntry{}).Error; err != nil {
			return queryError("delete session", err)
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&Session{})
		if res.Error != nil {
			return queryError("delete session", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound(fmt.Sprintf("session %d not found", sessionID))
		}
		return nil
	})
}

// =============================================================================
// 📝 消息
// =============================================================================

// Messages 按时间顺序返回会话消息。limit > 0 时只返回最近 limit 条。
func (s *Store) Messages(ctx context.Context, sessionID int64, limit int) ([]HistoryEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	q := s.db(ctx).Where("session_id = ?", sessionID)
	var entries []HistoryEntry
	if limit > 0 {
		if err := q.Order("created_at DESC, history_id DESC").Limit(limit).Find(&entries).Error; err != nil {
			return nil, queryError("list messages", err)
		}
		slices.Reverse(entries)
		return entries, nil
	}
	if err := q.Order("created_at ASC, history_id ASC").Find(&entries).Error; err != nil {
		return nil, queryError("list messages", err)
	}
	return entries, nil
}

// History 以对话消息形式返回最近 limit 条记录，供问题改写使用
func (s *Store) History(ctx context.Context, sessionID int64, limit int) ([]types.Message, error) {
	entries, err := s.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.ToMessage())
	}
	return msgs, nil
}

// AppendTurn 在一个事务内追加一轮问答，并刷新会话的 updated_at。
// 会话仍为默认名称时以问题开头重命名。
func (s *Store) AppendTurn(ctx context.Context, sessionID int64, question, answer string) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var session Session
		if err := tx.First(&session, "session_id = ?", sessionID).Error; err != nil {
			return queryError("append turn", err)
		}

		now := time.Now().UTC()
		entries := []HistoryEntry{
			{SessionID: sessionID, Role: types.RoleUser, Message: question, CreatedAt: now},
			{SessionID: sessionID, Role: types.RoleAssistant, Message: answer, CreatedAt: now},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return queryError("append turn", err)
		}

		updates := map[string]any{"updated_at": now}
		if session.Name == DefaultSessionName {
			updates["name"] = sessionName(question)
		}
		if err := tx.Model(&session).Updates(updates).Error; err != nil {
			return queryError("append turn", err)
		}
		return nil
	})
}

func sessionName(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" {
		return DefaultSessionName
	}
	if utf8.RuneCountInString(q) <= sessionNameRunes {
		return q
	}
	return string([]rune(q)[:sessionNameRunes]) + "..."
}

// =============================================================================
// ⚠️ 错误转换
// =============================================================================

func invalid(msg string) *types.Error {
	return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(http.StatusBadRequest)
}

func notFound(msg string) *types.Error {
	return types.NewError(types.ErrNotFound, msg).WithHTTPStatus(http.StatusNotFound)
}

func queryError(op string, err error) error {
	var typed *types.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(op + ": record not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return types.NewError(types.ErrInvalidRequest, op+": duplicate key").
			WithCause(err).
			WithHTTPStatus(http.StatusConflict)
	}
	return types.NewError(types.ErrStoreQuery, op+" failed").
		WithCause(err).
		WithHTTPStatus(http.StatusInternalServerError)
}
