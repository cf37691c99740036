package ingest

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/graphstore"
	"github.com/BaSui01/healthgraph/types"
)

// Embedder 文本向量化接口，由 openai.Embedder 实现
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

const (
	// 索引名不能参数化，写入前经 indexNamePattern 校验
	createIndexTemplate = "CREATE VECTOR INDEX `%s` IF NOT EXISTS\nFOR (n:%s) ON (n.embedding)\n" +
		"OPTIONS {indexConfig: {`vector.dimensions`: $dimensions, `vector.similarity_function`: 'cosine'}}"

	pendingCypher = `MATCH (n:HealthData)
WHERE n.embedding IS NULL
RETURN elementId(n) AS id, n.name AS text
LIMIT $limit`

	setEmbeddingsCypher = `UNWIND $rows AS row
MATCH (n:HealthData) WHERE elementId(n) = row.id
CALL db.create.setNodeVectorProperty(n, 'embedding', row.embedding)`
)

var indexNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IndexerConfig 向量索引构建配置
type IndexerConfig struct {
	IndexName string
	BatchSize int
}

// IndexReport 一次构建的结果
type IndexReport struct {
	Index    string `json:"index"`
	Embedded int    `json:"embedded"`
	Batches  int    `json:"batches"`
}

// Indexer 向量索引构建器
type Indexer struct {
	store    graphstore.Store
	embedder Embedder
	config   IndexerConfig
	logger   *zap.Logger
}

// NewIndexer 创建索引构建器
func NewIndexer(store graphstore.Store, embedder Embedder, cfg IndexerConfig, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "health_vector"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logger.With(zap.String("component", "indexer")),
	}
}

// Build 创建向量索引（已存在时跳过），然后分批为没有向量的节点生成嵌入。
// 可重复执行，每次只处理新写入的节点。
func (x *Indexer) Build(ctx context.Context) (IndexReport, error) {
	report := IndexReport{Index: x.config.IndexName}
	if !indexNamePattern.MatchString(x.config.IndexName) {
		return report, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid index name %q", x.config.IndexName))
	}

	err := x.store.Write(ctx, func(ctx context.Context, tx graphstore.Tx) error {
		_, err := tx.Run(ctx, graphstore.Statement{
			Name:   graphstore.StmtVectorIndexCreate,
			Cypher: fmt.Sprintf(createIndexTemplate, x.config.IndexName, types.CategoryLabel),
			Params: map[string]any{
				"index":      x.config.IndexName,
				"dimensions": int64(x.embedder.Dimensions()),
			},
		})
		return err
	})
	if err != nil {
		return report, fmt.Errorf("create vector index: %w", err)
	}

	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rows, err := x.store.Read(ctx, graphstore.Statement{
			Name:   graphstore.StmtPendingEmbeddings,
			Cypher: pendingCypher,
			Params: map[string]any{"limit": int64(x.config.BatchSize)},
		})
		if err != nil {
			return report, fmt.Errorf("list pending nodes: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		ids := graphstore.Strings(rows, "id")
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return report, fmt.Errorf("embedding for node %s was not persisted", id)
			}
			seen[id] = struct{}{}
		}

		vectors, err := x.embedder.Embed(ctx, graphstore.Strings(rows, "text"))
		if err != nil {
			return report, fmt.Errorf("embed batch %d: %w", report.Batches+1, err)
		}
		if len(vectors) != len(rows) {
			return report, fmt.Errorf("embed batch %d: got %d vectors for %d texts", report.Batches+1, len(vectors), len(rows))
		}

		updates := make([]map[string]any, len(rows))
		for i, r := range rows {
			updates[i] = map[string]any{"id": r.String("id"), "embedding": vectors[i]}
		}
		err = x.store.Write(ctx, func(ctx context.Context, tx graphstore.Tx) error {
			_, err := tx.Run(ctx, graphstore.Statement{
				Name:   graphstore.StmtSetEmbeddings,
				Cypher: setEmbeddingsCypher,
				Params: map[string]any{"rows": updates},
			})
			return err
		})
		if err != nil {
			return report, fmt.Errorf("store embeddings: %w", err)
		}

		report.Batches++
		report.Embedded += len(rows)
		x.logger.Debug("embedded batch", zap.Int("batch", report.Batches), zap.Int("nodes", len(rows)))
	}

	x.logger.Info("vector index built",
		zap.String("index", report.Index),
		zap.Int("embedded", report.Embedded),
		zap.Int("batches", report.Batches),
	)
	return report, nil
}
