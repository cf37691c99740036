package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/ctxkeys"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 💬 会话 Handler
// =============================================================================

// CreateSessionRequest POST /api/v1/sessions 的请求体
type CreateSessionRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// SessionHandler 会话增删查
type SessionHandler struct {
	chats  ChatStore
	logger *zap.Logger
}

// NewSessionHandler 创建处理器。chats 为 nil 时所有路由返回 501。
func NewSessionHandler(chats ChatStore, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{chats: chats, logger: logger.With(zap.String("component", "session_handler"))}
}

func (h *SessionHandler) enabled(w http.ResponseWriter, r *http.Request) bool {
	if h.chats == nil {
		WriteError(w, r, errSessionsDisabled, h.logger)
		return false
	}
	return true
}

// HandleCreate POST /api/v1/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	var req CreateSessionRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if req.UserID <= 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "user_id must be positive", h.logger)
		return
	}

	session, err := h.chats.CreateSession(ctxkeys.WithUserID(r.Context(), req.UserID), req.UserID, req.Name)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusCreated, session)
}

// HandleList GET /api/v1/users/{id}/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	userID, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	sessions, err := h.chats.ListSessions(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, sessions)
}

// HandleMessages GET /api/v1/sessions/{id}/messages?limit=N
func (h *SessionHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	sessionID, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid limit", h.logger)
			return
		}
		limit = n
	}

	entries, err := h.chats.Messages(ctxkeys.WithSessionID(r.Context(), sessionID), sessionID, limit)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, entries)
}

// HandleDelete DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	sessionID, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.chats.DeleteSession(ctxkeys.WithSessionID(r.Context(), sessionID), sessionID); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"session_id": sessionID, "deleted": true})
}
