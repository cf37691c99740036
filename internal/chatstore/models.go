package chatstore

import (
	"time"

	"github.com/BaSui01/healthgraph/types"
)

// DefaultSessionName 新会话的默认名称，首轮问答后改为问题摘要
const DefaultSessionName = "New chat"

// User 用户表。user_id 与图中的 User 节点一致，由调用方指定。
type User struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Username  string    `gorm:"size:255;not null;uniqueIndex" json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// Session 聊天会话
type Session struct {
	SessionID int64     `gorm:"column:session_id;primaryKey" json:"session_id"`
	UserID    int64     `gorm:"not null;index:idx_user_created_at" json:"user_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"index:idx_user_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名
func (Session) TableName() string {
	return "chat_sessions"
}

// HistoryEntry 会话中的一条消息
type HistoryEntry struct {
	HistoryID int64      `gorm:"column:history_id;primaryKey" json:"history_id"`
	SessionID int64      `gorm:"not null;index:idx_session_created_at" json:"session_id"`
	Role      types.Role `gorm:"size:16;not null" json:"role"`
	Message   string     `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time  `gorm:"index:idx_session_created_at" json:"created_at"`
}

// TableName 表名
func (HistoryEntry) TableName() string {
	return "chat_history"
}

// ToMessage 转换为对话消息
func (h HistoryEntry) ToMessage() types.Message {
	return types.Message{Role: h.Role, Content: h.Message, Timestamp: h.CreatedAt}
}
