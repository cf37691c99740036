// Package anthropic 基于 anthropic-sdk-go 实现 llm.Provider（Messages API）。
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/healthgraph/internal/tlsutil"
	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/types"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

// MessagesAPI 是 anthropic.MessageService 中用到的子集，测试时可替换
type MessagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config Anthropic Provider 配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// Provider Anthropic 补全实现
type Provider struct {
	messages MessagesAPI
	cfg      Config
	logger   *zap.Logger
}

// New 创建 Anthropic Provider
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)

	return NewWithMessages(&client.Messages, cfg, logger), nil
}

// NewWithMessages 使用给定的 MessagesAPI 创建 Provider
func NewWithMessages(messages MessagesAPI, cfg Config, logger *zap.Logger) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		messages: messages,
		cfg:      cfg,
		logger:   logger.With(zap.String("provider", providerName)),
	}
}

// Name 实现 llm.Provider
func (p *Provider) Name() string { return providerName }

// Completion 实现 llm.Provider。system 消息合并进 System 字段，
// JSONMode 通过追加指令实现（Messages API 没有 JSON 输出开关）。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	system, messages := convertMessages(req.Messages)
	if req.JSONMode {
		system = append(system, anthropic.TextBlockParam{
			Text: "Respond with a single JSON object and nothing else.",
		})
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		System:      system,
		Messages:    messages,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	message, err := p.messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.ChatResponse{
		ID:       message.ID,
		Provider: providerName,
		Model:    string(message.Model),
		Choices: []llm.ChatChoice{{
			FinishReason: string(message.StopReason),
			Message:      types.NewAssistantMessage(text.String()),
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 发送一个最小请求检查连通性与鉴权
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	status := &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		return status, mapError(err)
	}
	return status, nil
}

func convertMessages(msgs []types.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case types.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.MapHTTPError(providerName, apiErr.StatusCode, err)
	}
	return llm.WrapError(providerName, err)
}
