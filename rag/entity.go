package rag

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/retry"
	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/types"
)

const entityInstruction = "Extract health-related entities (food, activity, sleep, biometrics) from text."

// 抽取结果分类，用于指标标签
const (
	ExtractionOK      = "ok"
	ExtractionEmpty   = "empty"
	ExtractionFailed  = "failure"
	ExtractionCached  = "cached"
	entityCachePrefix = "entities"
)

// EntityCache 实体抽取结果缓存，由 cache.Manager 实现
type EntityCache interface {
	Key(namespace string, parts ...string) string
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// EntityConfig 实体抽取配置
type EntityConfig struct {
	Model    string
	Retries  int
	CacheTTL time.Duration
}

// EntityExtractor 基于 LLM 的实体抽取器
type EntityExtractor struct {
	provider llm.Provider
	config   EntityConfig
	cache    EntityCache
	recorder Recorder
	retryer  *retry.Retryer
	logger   *zap.Logger
}

// EntityOption 实体抽取器选项
type EntityOption func(*EntityExtractor)

// WithEntityCache 启用抽取结果缓存
func WithEntityCache(c EntityCache) EntityOption {
	return func(e *EntityExtractor) { e.cache = c }
}

// WithEntityRecorder 设置指标记录器
func WithEntityRecorder(r Recorder) EntityOption {
	return func(e *EntityExtractor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEntityExtractor 创建实体抽取器
func NewEntityExtractor(provider llm.Provider, cfg EntityConfig, logger *zap.Logger, opts ...EntityOption) *EntityExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	logger = logger.With(zap.String("component", "entity_extractor"))

	e := &EntityExtractor{
		provider: provider,
		config:   cfg,
		recorder: nopRecorder{},
		logger:   logger,
		retryer: retry.New(retry.Policy{
			MaxRetries:   cfg.Retries,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			Retryable: func(err error) bool {
				return types.IsCode(err, types.ErrExtractionFailure)
			},
		}, logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 返回问题中的健康实体。结果可能为空但从不为 nil；
// 调用失败或回复不满足 EntitySchema 时返回 ErrExtractionFailure。
func (e *EntityExtractor) Extract(ctx context.Context, question string) ([]string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return []string{}, nil
	}

	var key string
	if e.cache != nil {
		key = e.cache.Key(entityCachePrefix, e.config.Model, question)
		var cached []string
		if err := e.cache.GetJSON(ctx, key, &cached); err == nil && cached != nil {
			e.recorder.RecordCacheHit(entityCachePrefix)
			e.recorder.RecordExtraction(ExtractionCached)
			return cached, nil
		}
		e.recorder.RecordCacheMiss(entityCachePrefix)
	}

	names, err := retry.Do(ctx, e.retryer, func(ctx context.Context) ([]string, error) {
		return e.extractOnce(ctx, question)
	})
	if err != nil {
		e.recorder.RecordExtraction(ExtractionFailed)
		e.logger.Warn("entity extraction failed", zap.Error(err))
		return nil, err
	}

	if len(names) == 0 {
		e.recorder.RecordExtraction(ExtractionEmpty)
	} else {
		e.recorder.RecordExtraction(ExtractionOK)
	}
	e.logger.Debug("entities extracted", zap.Strings("entities", names))

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, names, e.config.CacheTTL); err != nil {
			e.logger.Warn("failed to cache entities", zap.Error(err))
		}
	}
	return names, nil
}

func (e *EntityExtractor) extractOnce(ctx context.Context, question string) ([]string, error) {
	req := &llm.ChatRequest{
		Model: e.config.Model,
		Messages: []types.Message{
			types.NewSystemMessage(buildEntityPrompt()),
			types.NewUserMessage(question),
		},
		Temperature: 0,
		JSONMode:    true,
	}

	resp, err := e.provider.Completion(ctx, req)
	if err != nil {
		return nil, types.NewExtractionFailure("entity extraction call failed", err)
	}
	return ParseEntities(resp.Text())
}

func buildEntityPrompt() string {
	var sb strings.Builder
	sb.WriteString(entityInstruction)
	sb.WriteString("\n\nRespond with ONLY a JSON object that conforms to this schema. ")
	sb.WriteString("Use an empty list when the text mentions no such entity.\n")
	sb.WriteString(EntitySchema.String())
	return sb.String()
}

// ParseEntities 校验并解析实体抽取回复。名称去除首尾空白，
// 空名称被丢弃，重复名称（忽略大小写）只保留第一次出现。
func ParseEntities(raw string) ([]string, error) {
	payload := extractJSON(raw)
	if err := ValidateJSON([]byte(payload), EntitySchema); err != nil {
		return nil, types.NewExtractionFailure("entity payload does not match schema", err)
	}

	var out struct {
		Names []string `json:"names"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, types.NewExtractionFailure("entity payload is not decodable", err)
	}

	names := make([]string, 0, len(out.Names))
	seen := make(map[string]struct{}, len(out.Names))
	for _, name := range out.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		folded := strings.ToLower(name)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
