// Package factory creates the configured llm.Provider and embedder. It imports
// the provider sub-packages, which keeps the llm package free of SDK imports.
package factory

import (
	"fmt"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/llm"
	claude "github.com/BaSui01/healthgraph/llm/providers/anthropic"
	"github.com/BaSui01/healthgraph/llm/providers/openai"
	"go.uber.org/zap"
)

// compatibleBaseURLs 兼容 OpenAI Chat Completions 协议的服务及其默认地址
var compatibleBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"glm":      "https://open.bigmodel.cn/api/paas/v4",
	"kimi":     "https://api.moonshot.cn/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"grok":     "https://api.x.ai/v1",
	"hunyuan":  "https://api.hunyuan.cloud.tencent.com/v1",
	"doubao":   "https://ark.cn-beijing.volces.com/api/v3",
}

// IsSupported reports whether NewProvider accepts the name.
func IsSupported(name string) bool {
	switch name {
	case "openai", "anthropic", "claude":
		return true
	}
	_, ok := compatibleBaseURLs[name]
	return ok
}

// NewProvider creates the provider named by cfg.Provider.
//
// Supported names: openai, anthropic (alias claude), and the OpenAI-compatible
// services in compatibleBaseURLs, which go through the OpenAI SDK with their
// own base URL unless cfg.BaseURL overrides it.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if base, ok := compatibleBaseURLs[cfg.Provider]; ok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = base
		}
		return openai.New(openai.Config{
			Name:       cfg.Provider,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, logger)
	}

	switch cfg.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, logger)

	case "anthropic", "claude":
		return claude.New(claude.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates the embedding client. The embedding API key falls back
// to the LLM key so a single OpenAI key configures both.
func NewEmbedder(cfg config.EmbeddingConfig, llmCfg config.LLMConfig, logger *zap.Logger) (*openai.Embedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" && llmCfg.Provider == "openai" {
		apiKey = llmCfg.APIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" && llmCfg.Provider == "openai" {
		baseURL = llmCfg.BaseURL
	}
	return openai.NewEmbedder(openai.EmbedderConfig{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
		MaxRetries: llmCfg.MaxRetries,
	}, logger)
}
