package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
)

// EmbedderConfig 向量化配置
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// Embedder 基于 Embeddings API 的文本向量化实现
type Embedder struct {
	client *openai.Client
	cfg    EmbedderConfig
	logger *zap.Logger
}

// NewEmbedder 创建 Embedder
func NewEmbedder(cfg EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: embedding api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(clientOptions(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.MaxRetries)...)
	return &Embedder{
		client: &client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedder")),
	}, nil
}

// Embed 按批次向量化 texts，返回与输入同序的向量
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.cfg.Model),
	}
	if e.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.cfg.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, MapError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	e.logger.Debug("embedded batch", zap.Int("size", len(texts)))
	return vectors, nil
}

// Dimensions 返回配置的向量维度
func (e *Embedder) Dimensions() int { return e.cfg.Dimensions }
