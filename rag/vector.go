package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/graphstore"
)

// Embedder 文本向量化接口，由 openai.Embedder 实现
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

const (
	vectorIndexExistsCypher = `SHOW VECTOR INDEXES YIELD name WHERE name = $index RETURN name`

	// 先取 $candidates 个近邻再按用户过滤，保证过滤后仍能凑满 $k
	vectorQueryCypher = `CALL db.index.vector.queryNodes($index, $candidates, $embedding)
YIELD node, score
MATCH (u:User {user_id: $user_id})-->(node)
RETURN node.name AS text, score
ORDER BY score DESC
LIMIT $k`
)

// VectorConfig 向量检索配置
type VectorConfig struct {
	IndexName string
	TopK      int
	// Oversample 近邻候选数相对 TopK 的倍数
	Oversample int
}

// VectorRetriever 对原始问题做向量相似度检索。
// 不做日期或类别过滤；索引不存在时返回空列表而不是错误。
type VectorRetriever struct {
	store    graphstore.Store
	embedder Embedder
	config   VectorConfig
	logger   *zap.Logger
}

// NewVectorRetriever 创建向量检索器
func NewVectorRetriever(store graphstore.Store, embedder Embedder, cfg VectorConfig, logger *zap.Logger) *VectorRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = 10
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "health_vector"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logger.With(zap.String("component", "vector_retriever")),
	}
}

// IndexExists 检查向量索引是否已建立
func (v *VectorRetriever) IndexExists(ctx context.Context) (bool, error) {
	rows, err := v.store.Read(ctx, graphstore.Statement{
		Name:   graphstore.StmtVectorIndexExists,
		Cypher: vectorIndexExistsCypher,
		Params: map[string]any{"index": v.config.IndexName},
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Search 返回与问题最相近的至多 TopK 个节点文本，按相似度降序
func (v *VectorRetriever) Search(ctx context.Context, question string, userID int64) ([]string, error) {
	exists, err := v.IndexExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check vector index: %w", err)
	}
	if !exists {
		v.logger.Debug("vector index not built yet", zap.String("index", v.config.IndexName))
		return []string{}, nil
	}

	vectors, err := v.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vectors))
	}

	rows, err := v.store.Read(ctx, graphstore.Statement{
		Name:   graphstore.StmtVectorQuery,
		Cypher: vectorQueryCypher,
		Params: map[string]any{
			"index":      v.config.IndexName,
			"candidates": int64(v.config.TopK * v.config.Oversample),
			"embedding":  vectors[0],
			"user_id":    userID,
			"k":          int64(v.config.TopK),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	texts := graphstore.Strings(rows, "text")
	if len(texts) > v.config.TopK {
		texts = texts[:v.config.TopK]
	}
	return texts, nil
}
