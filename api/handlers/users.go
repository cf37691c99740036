package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/internal/ctxkeys"
)

// =============================================================================
// 👤 用户数据 Handler
// =============================================================================

// IngestRequest POST /api/v1/users/{id}/ingest 的请求体
type IngestRequest struct {
	Username string          `json:"username"`
	Datasets ingest.Datasets `json:"datasets"`
}

// IngestResponse 写入结果，附带可选的向量索引报告
type IngestResponse struct {
	ingest.Summary
	Index      *ingest.IndexReport `json:"index,omitempty"`
	IndexError string              `json:"index_error,omitempty"`
}

// UserHandler 处理健康数据写入与用户删除
type UserHandler struct {
	writer  IngestService
	indexer IndexService
	chats   ChatStore
	logger  *zap.Logger
}

// NewUserHandler 创建处理器。indexer 与 chats 可为 nil。
func NewUserHandler(writer IngestService, indexer IndexService, chats ChatStore, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		writer:  writer,
		indexer: indexer,
		chats:   chats,
		logger:  logger.With(zap.String("component", "user_handler")),
	}
}

// HandleIngest POST /api/v1/users/{id}/ingest
func (h *UserHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	userID, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req IngestRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	ctx := ctxkeys.WithUserID(r.Context(), userID)

	summary, err := h.writer.Ingest(ctx, ingest.User{ID: userID, Username: req.Username}, req.Datasets)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	if h.chats != nil {
		if _, err := h.chats.EnsureUser(ctx, userID, summary.Username); err != nil {
			h.logger.Warn("failed to sync chat user", append(ctxkeys.LogFields(ctx), zap.Error(err))...)
		}
	}

	resp := IngestResponse{Summary: summary}
	if h.indexer != nil {
		report, err := h.indexer.Build(ctx)
		if err != nil {
			// 记录已写入图中，向量可稍后通过 index 命令补齐
			h.logger.Warn("vector index build failed after ingest", append(ctxkeys.LogFields(ctx), zap.Error(err))...)
			resp.IndexError = err.Error()
		} else {
			resp.Index = &report
		}
	}
	WriteSuccess(w, r, resp)
}

// HandleDeleteUser DELETE /api/v1/users/{id}，删除图数据与聊天记录，可重复调用
func (h *UserHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	ctx := ctxkeys.WithUserID(r.Context(), userID)

	if err := h.writer.Delete(ctx, userID); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if h.chats != nil {
		if err := h.chats.DeleteUser(ctx, userID); err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
	}
	WriteSuccess(w, r, map[string]any{"user_id": userID, "deleted": true})
}
