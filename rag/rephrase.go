package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/types"
)

const rephraseInstruction = "Rephrase the follow-up question as a standalone health query."

// Rephraser 把带聊天历史的追问改写为独立问题
type Rephraser struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewRephraser 创建改写器
func NewRephraser(provider llm.Provider, model string, logger *zap.Logger) *Rephraser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rephraser{
		provider: provider,
		model:    model,
		logger:   logger.With(zap.String("component", "rephraser")),
	}
}

// Rephrase 历史为空时原样返回问题；模型返回空文本时也回落到原问题
func (r *Rephraser) Rephrase(ctx context.Context, question string, history []types.Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	req := &llm.ChatRequest{
		Model: r.model,
		Messages: []types.Message{
			types.NewSystemMessage(rephraseInstruction),
			types.NewUserMessage(fmt.Sprintf("Chat History: %s\nQuestion: %s\nStandalone question:", formatHistory(history), question)),
		},
		Temperature: 0,
	}
	resp, err := r.provider.Completion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("rephrase question: %w", err)
	}

	standalone := strings.TrimSpace(resp.Text())
	if standalone == "" {
		return question, nil
	}
	r.logger.Debug("question rephrased", zap.String("from", question), zap.String("to", standalone))
	return standalone, nil
}

func formatHistory(history []types.Message) string {
	var sb strings.Builder
	for _, m := range history {
		if m.Role == types.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
