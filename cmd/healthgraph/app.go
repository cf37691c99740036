package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/internal/cache"
	"github.com/BaSui01/healthgraph/internal/chatstore"
	"github.com/BaSui01/healthgraph/internal/database"
	"github.com/BaSui01/healthgraph/internal/graphstore"
	"github.com/BaSui01/healthgraph/internal/metrics"
	"github.com/BaSui01/healthgraph/internal/migration"
	"github.com/BaSui01/healthgraph/llm"
	llmfactory "github.com/BaSui01/healthgraph/llm/factory"
	"github.com/BaSui01/healthgraph/llm/providers/openai"
	"github.com/BaSui01/healthgraph/rag"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有 serve 与各 CLI 子命令共用的组件。
// 图存储总是打开；检索管线、索引器与聊天存储按需构建。
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	graph  *graphstore.Neo4jStore
	writer *ingest.Writer

	provider llm.Provider
	embedder *openai.Embedder
	cache    *cache.Manager

	retriever *rag.HealthRetriever
	answerer  *rag.Answerer
	indexer   *ingest.Indexer

	db    *database.PoolManager
	chats *chatstore.Store
}

// newApp 连接图存储并创建写入器
func newApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*app, error) {
	graph, err := graphstore.NewNeo4jStore(ctx, cfg.Neo4j, logger, graphstore.WithObserver(collector))
	if err != nil {
		return nil, fmt.Errorf("connect graph store: %w", err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		graph:   graph,
		writer:  ingest.NewWriter(graph, logger, ingest.WithRecorder(collector)),
	}, nil
}

// withEmbedder 创建向量化客户端（检索与索引共用）
func (a *app) withEmbedder() error {
	if a.embedder != nil {
		return nil
	}
	embedder, err := llmfactory.NewEmbedder(a.cfg.Embedding, a.cfg.LLM, a.logger)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	a.embedder = embedder
	return nil
}

// withRetrieval 构建混合检索管线与回答器。
// Redis 不可用时实体抽取不走缓存，检索本身不受影响。
func (a *app) withRetrieval() error {
	if a.retriever != nil {
		return nil
	}
	provider, err := llmfactory.NewProvider(a.cfg.LLM, a.logger)
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	a.provider = llm.NewInstrumentedProvider(provider, a.cfg.LLM.Model, a.metrics, a.logger)
	if err := a.withEmbedder(); err != nil {
		return err
	}

	rc := a.cfg.Retrieval
	entityOpts := []rag.EntityOption{rag.WithEntityRecorder(a.metrics)}
	if a.cfg.Redis.Enabled {
		cm, err := cache.NewManager(cache.FromAppConfig(a.cfg.Redis, rc.CacheTTL), a.logger)
		if err != nil {
			a.logger.Warn("redis unavailable, entity cache disabled", zap.Error(err))
		} else {
			a.cache = cm
			entityOpts = append(entityOpts, rag.WithEntityCache(cm))
		}
	}

	extractor := rag.NewEntityExtractor(a.provider, rag.EntityConfig{
		Model:    a.cfg.LLM.Model,
		Retries:  rc.EntityRetries,
		CacheTTL: rc.CacheTTL,
	}, a.logger, entityOpts...)
	planner := rag.NewPlanner(a.graph, rag.PlannerConfig{
		LineLimit:   rc.LineLimit,
		Concurrency: rc.Concurrency,
	}, a.metrics, a.logger)
	vector := rag.NewVectorRetriever(a.graph, a.embedder, rag.VectorConfig{
		IndexName: rc.VectorIndex,
		TopK:      rc.TopK,
	}, a.logger)

	a.retriever = rag.NewHealthRetriever(extractor, planner, vector,
		rag.RetrieverConfig{BranchTimeout: rc.Timeout},
		a.logger,
		rag.WithRephraser(rag.NewRephraser(a.provider, a.cfg.LLM.Model, a.logger)),
		rag.WithRecorder(a.metrics),
	)
	a.answerer = rag.NewAnswerer(a.retriever, a.provider, rag.AnswererConfig{
		Model:               a.cfg.LLM.Model,
		MaxTokens:           a.cfg.LLM.MaxTokens,
		EvidenceTokenBudget: rc.EvidenceTokenBudget,
	}, a.logger)
	return nil
}

// withIndexer 构建向量索引构建器
func (a *app) withIndexer() error {
	if a.indexer != nil {
		return nil
	}
	if err := a.withEmbedder(); err != nil {
		return err
	}
	a.indexer = ingest.NewIndexer(a.graph, a.embedder, ingest.IndexerConfig{
		IndexName: a.cfg.Retrieval.VectorIndex,
		BatchSize: a.cfg.Embedding.BatchSize,
	}, a.logger)
	return nil
}

// withChatStore 打开聊天存储。未配置数据库驱动时返回 false，
// 会话相关功能随之关闭。auto_migrate 开启时先执行迁移。
func (a *app) withChatStore(ctx context.Context) (bool, error) {
	if a.chats != nil {
		return true, nil
	}
	dc := a.cfg.Database
	if dc.Driver == "" {
		return false, nil
	}
	if dc.AutoMigrate {
		if err := migrateUp(ctx, dc, a.logger); err != nil {
			return false, err
		}
	}
	pool, err := database.Open(dc, a.logger)
	if err != nil {
		return false, fmt.Errorf("open chat database: %w", err)
	}
	a.db = pool
	a.chats = chatstore.New(pool, a.logger)
	return true, nil
}

// migrateUp 使用独立连接执行全部待执行迁移
func migrateUp(ctx context.Context, dc config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.Open(dc, logger)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	upErr := m.Up(ctx)
	if err := errors.Join(upErr, m.Close()); err != nil {
		return fmt.Errorf("migrate chat database: %w", err)
	}
	return nil
}

// close 按创建的逆序释放资源
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.graph != nil {
		errs = append(errs, a.graph.Close(ctx))
	}
	return errors.Join(errs...)
}
