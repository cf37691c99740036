package handlers

import (
	"context"

	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/internal/chatstore"
	"github.com/BaSui01/healthgraph/rag"
	"github.com/BaSui01/healthgraph/types"
)

// EvidenceService 混合检索入口
type EvidenceService interface {
	AnswerEvidence(ctx context.Context, question string, userID int64, history []types.Message) (*rag.Evidence, error)
}

// AnswerService 证据 + LLM 总结
type AnswerService interface {
	Answer(ctx context.Context, question string, userID int64, history []types.Message) (*rag.Answer, error)
}

// IngestService 健康数据写入与删除
type IngestService interface {
	Ingest(ctx context.Context, user ingest.User, data ingest.Datasets) (ingest.Summary, error)
	Delete(ctx context.Context, userID int64) error
}

// IndexService 为新写入的记录补齐向量
type IndexService interface {
	Build(ctx context.Context) (ingest.IndexReport, error)
}

// ChatStore 聊天会话存储
type ChatStore interface {
	EnsureUser(ctx context.Context, userID int64, username string) (*chatstore.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	CreateSession(ctx context.Context, userID int64, name string) (*chatstore.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*chatstore.Session, error)
	ListSessions(ctx context.Context, userID int64) ([]chatstore.Session, error)
	Messages(ctx context.Context, sessionID int64, limit int) ([]chatstore.HistoryEntry, error)
	History(ctx context.Context, sessionID int64, limit int) ([]types.Message, error)
	AppendTurn(ctx context.Context, sessionID int64, question, answer string) error
	DeleteSession(ctx context.Context, sessionID int64) error
}
