// Package openai 基于 openai-go SDK 实现 llm.Provider（Chat Completions API），
// 也可通过 BaseURL 接入兼容 OpenAI 协议的服务。
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/healthgraph/internal/tlsutil"
	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/types"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const providerName = "openai"

// Config OpenAI Provider 配置
type Config struct {
	// Name 指标与错误中使用的 Provider 名称，兼容服务可设为自己的名字，默认 openai
	Name       string
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// Provider OpenAI 补全实现
type Provider struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// New 创建 OpenAI Provider
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Name == "" {
		cfg.Name = providerName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(clientOptions(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.MaxRetries)...)
	return &Provider{
		client: &client,
		cfg:    cfg,
		logger: logger.With(zap.String("provider", cfg.Name)),
	}, nil
}

// clientOptions 构造 SDK 请求选项，embedding 包复用同一组选项
func clientOptions(apiKey, baseURL string, timeout time.Duration, maxRetries int) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(0)),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return opts
}

// Name 实现 llm.Provider
func (p *Provider) Name() string { return p.cfg.Name }

// Completion 实现 llm.Provider
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

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    convertMessages(req.Messages),
		Temperature: openai.Float(float64(req.Temperature)),
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(p.cfg.Name, err)
	}

	resp := &llm.ChatResponse{
		ID:        completion.ID,
		Provider:  p.cfg.Name,
		Model:     completion.Model,
		CreatedAt: time.Unix(completion.Created, 0),
		Usage: llm.ChatUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for i, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, llm.ChatChoice{
			Index:        i,
			FinishReason: string(choice.FinishReason),
			Message:      types.NewAssistantMessage(choice.Message.Content),
		})
	}
	if len(resp.Choices) == 0 {
		return nil, llm.MapHTTPError(p.cfg.Name, 0, errors.New("response carried no choices"))
	}
	return resp, nil
}

// HealthCheck 通过列出模型检查连通性与鉴权
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	if _, err := p.client.Models.List(ctx); err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: time.Since(start)}, mapError(p.cfg.Name, err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Since(start)}, nil
}

func convertMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// MapError 把 SDK 错误映射为 types.Error
func MapError(err error) error {
	return mapError(providerName, err)
}

func mapError(name string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.MapHTTPError(name, apiErr.StatusCode, err)
	}
	return llm.WrapError(name, err)
}
