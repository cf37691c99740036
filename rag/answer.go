package rag

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/llm/tokenizer"
	"github.com/BaSui01/healthgraph/types"
)

// NoInformationAnswer 证据为空时的固定回答，不调用 LLM
const NoInformationAnswer = "I'm sorry, I don't have the information to answer that."

const answerInstruction = `You are a personal health assistant. Answer the user's question using only the health records in the context.
The context has a "Structured Data" section with lines of the form "source - RELATIONSHIP -> target" and an "Unstructured Data" section of related records.
If the context does not contain the answer, say that the information is not available. Keep the answer short and concrete.`

// AnswererConfig 回答生成配置
type AnswererConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	// EvidenceTokenBudget 证据文本的 token 上限，超出时从尾部整行裁剪
	EvidenceTokenBudget int
}

// Answer 回答与其依据的证据
type Answer struct {
	Answer   string        `json:"answer"`
	Evidence *Evidence     `json:"evidence"`
	Usage    llm.ChatUsage `json:"usage"`
	// NoInformation is true when the evidence was empty and no model was called.
	NoInformation bool `json:"no_information"`
	// TrimmedLines counts evidence lines dropped to fit the token budget.
	TrimmedLines int `json:"trimmed_lines,omitempty"`
}

// Answerer 把证据交给 LLM 总结为回答
type Answerer struct {
	retriever *HealthRetriever
	provider  llm.Provider
	config    AnswererConfig
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// AnswererOption 回答器选项
type AnswererOption func(*Answerer)

// WithTokenizer 替换默认分词器
func WithTokenizer(t tokenizer.Tokenizer) AnswererOption {
	return func(a *Answerer) { a.tokenizer = t }
}

// NewAnswerer 创建回答器
func NewAnswerer(retriever *HealthRetriever, provider llm.Provider, cfg AnswererConfig, logger *zap.Logger, opts ...AnswererOption) *Answerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Answerer{
		retriever: retriever,
		provider:  provider,
		config:    cfg,
		logger:    logger.With(zap.String("component", "answerer")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tokenizer == nil {
		a.tokenizer = tokenizer.ForModel(cfg.Model, logger)
	}
	return a
}

// Answer 检索证据并生成回答。证据为空时直接返回 NoInformationAnswer。
func (a *Answerer) Answer(ctx context.Context, question string, userID int64, history []types.Message) (*Answer, error) {
	ev, err := a.retriever.AnswerEvidence(ctx, question, userID, history)
	if err != nil {
		return nil, err
	}
	if ev.Empty() {
		return &Answer{Answer: NoInformationAnswer, Evidence: ev, NoInformation: true}, nil
	}

	evidenceText, trimmed, err := tokenizer.TruncateLines(a.tokenizer, ev.Text, a.config.EvidenceTokenBudget)
	if err != nil {
		return nil, fmt.Errorf("count evidence tokens: %w", err)
	}
	if trimmed > 0 {
		a.logger.Info("evidence trimmed to token budget",
			zap.Int("dropped_lines", trimmed),
			zap.Int("budget", a.config.EvidenceTokenBudget),
		)
	}

	messages := []types.Message{types.NewSystemMessage(answerInstruction)}
	for _, m := range history {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			messages = append(messages, m)
		}
	}
	messages = append(messages, types.NewUserMessage(
		fmt.Sprintf("Context:\n%s\n\nQuestion: %s", evidenceText, ev.Question),
	))

	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.config.Model,
		Messages:    messages,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	})
	if err != nil {
		return nil, types.NewError(types.ErrLLMFailure, "answer generation failed").
			WithCause(err).
			WithRetryable(true).
			WithHTTPStatus(http.StatusBadGateway)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		text = NoInformationAnswer
	}
	return &Answer{
		Answer:       text,
		Evidence:     ev,
		Usage:        resp.Usage,
		TrimmedLines: trimmed,
	}, nil
}
