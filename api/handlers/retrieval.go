package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/ctxkeys"
	"github.com/BaSui01/healthgraph/rag"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🔎 检索与回答 Handler
// =============================================================================

// QuestionRequest POST /api/v1/evidence 与 /api/v1/answer 的请求体
type QuestionRequest struct {
	Question  string `json:"question"`
	UserID    int64  `json:"user_id"`
	SessionID int64  `json:"session_id,omitempty"`
}

func (q *QuestionRequest) validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return types.NewError(types.ErrInvalidRequest, "question is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if q.UserID <= 0 {
		return types.NewError(types.ErrInvalidRequest, "user_id must be positive").WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// RetrievalHandler 处理证据检索与回答生成
type RetrievalHandler struct {
	evidence     EvidenceService
	answers      AnswerService
	chats        ChatStore
	historyLimit int
	logger       *zap.Logger
}

// NewRetrievalHandler 创建处理器。chats 为 nil 时忽略 session_id 之外的会话能力。
func NewRetrievalHandler(evidence EvidenceService, answers AnswerService, chats ChatStore, historyLimit int, logger *zap.Logger) *RetrievalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalHandler{
		evidence:     evidence,
		answers:      answers,
		chats:        chats,
		historyLimit: historyLimit,
		logger:       logger.With(zap.String("component", "retrieval_handler")),
	}
}

// HandleEvidence POST /api/v1/evidence
func (h *RetrievalHandler) HandleEvidence(w http.ResponseWriter, r *http.Request) {
	req, history, ok := h.prepare(w, r)
	if !ok {
		return
	}
	ctx := ctxkeys.WithUserID(r.Context(), req.UserID)

	evidence, err := h.evidence.AnswerEvidence(ctx, req.Question, req.UserID, history)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, evidence)
}

// AnswerResponse /api/v1/answer 的响应数据
type AnswerResponse struct {
	*rag.Answer
	SessionID int64 `json:"session_id,omitempty"`
}

// HandleAnswer POST /api/v1/answer。带 session_id 时把本轮问答追加到会话。
func (h *RetrievalHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	req, history, ok := h.prepare(w, r)
	if !ok {
		return
	}
	ctx := ctxkeys.WithUserID(r.Context(), req.UserID)

	answer, err := h.answers.Answer(ctx, req.Question, req.UserID, history)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	if req.SessionID > 0 {
		if err := h.chats.AppendTurn(ctx, req.SessionID, req.Question, answer.Answer); err != nil {
			// 回答已生成，记录失败不影响本次响应
			h.logger.Warn("failed to persist chat turn",
				append(ctxkeys.LogFields(ctx), zap.Int64("session_id", req.SessionID), zap.Error(err))...)
		}
	}
	WriteSuccess(w, r, AnswerResponse{Answer: answer, SessionID: req.SessionID})
}

// prepare 解析请求并在带 session_id 时加载会话历史
func (h *RetrievalHandler) prepare(w http.ResponseWriter, r *http.Request) (QuestionRequest, []types.Message, bool) {
	var req QuestionRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return req, nil, false
	}
	if err := req.validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return req, nil, false
	}
	if req.SessionID <= 0 {
		return req, nil, true
	}

	history, err := h.sessionHistory(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return req, nil, false
	}
	return req, history, true
}

func (h *RetrievalHandler) sessionHistory(ctx context.Context, req QuestionRequest) ([]types.Message, error) {
	if h.chats == nil {
		return nil, errSessionsDisabled
	}
	session, err := h.chats.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != req.UserID {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("session %d not found", req.SessionID)).
			WithHTTPStatus(http.StatusNotFound)
	}
	return h.chats.History(ctx, req.SessionID, h.historyLimit)
}

var errSessionsDisabled = types.NewError(types.ErrInvalidRequest, "chat sessions are not enabled").
	WithHTTPStatus(http.StatusNotImplemented)
