package graphstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/internal/retry"
	"github.com/BaSui01/healthgraph/types"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/healthgraph/internal/graphstore"

// Neo4jStore 基于 neo4j-go-driver 的 Store 实现
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	retryer  *retry.Retryer
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option 配置 Neo4jStore
type Option func(*Neo4jStore)

// WithObserver 设置语句执行观察者（通常是 metrics.Collector）
func WithObserver(o Observer) Option {
	return func(s *Neo4jStore) { s.observer = o }
}

// NewNeo4jStore 建立驱动并校验连通性。连接失败返回 STORE_UNAVAILABLE。
func NewNeo4jStore(ctx context.Context, cfg config.Neo4jConfig, logger *zap.Logger, opts ...Option) (*Neo4jStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, types.NewStoreUnavailable("neo4j connectivity check failed", err)
	}

	s := &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.QueryTimeout,
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "graphstore")),
	}
	s.retryer = retry.New(retry.Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		Multiplier:   2,
		Jitter:       true,
	}, s.logger)
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("connected to neo4j",
		zap.String("uri", cfg.URI),
		zap.String("database", cfg.Database),
	)
	return s, nil
}

// Read 在只读托管事务中执行语句；STORE_UNAVAILABLE 按退避策略重试
func (s *Neo4jStore) Read(ctx context.Context, st Statement) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "graphstore.read", trace.WithAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("db.statement.name", st.Name),
	))
	defer span.End()

	records, err := retry.Do(ctx, s.retryer, func(ctx context.Context) ([]Record, error) {
		start := time.Now()
		records, err := s.read(ctx, st)
		s.observe(st.Name, err, time.Since(start))
		return records, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.rows", len(records)))
	return records, nil
}

func (s *Neo4jStore) read(ctx context.Context, st Statement) ([]Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return run(ctx, tx, st)
	}, s.txConfig()...)
	if err != nil {
		return nil, classify(st.Name, err)
	}
	return out.([]Record), nil
}

// Write 在单个写事务中执行 fn。fn 返回错误时事务回滚，错误原样返回。
func (s *Neo4jStore) Write(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "graphstore.write", trace.WithAttributes(
		attribute.String("db.system", "neo4j"),
	))
	defer span.End()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	var fnErr error
	_, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		fnErr = fn(ctx, &neo4jTx{tx: mtx, store: s})
		return nil, fnErr
	}, s.txConfig()...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if fnErr != nil {
			return classify("write", fnErr)
		}
		return classify("write", err)
	}
	return nil
}

// Ping 校验连通性
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return types.NewStoreUnavailable("neo4j unreachable", err)
	}
	return nil
}

// Close 关闭驱动及其连接池
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) txConfig() []func(*neo4j.TransactionConfig) {
	if s.timeout <= 0 {
		return nil
	}
	return []func(*neo4j.TransactionConfig){neo4j.WithTxTimeout(s.timeout)}
}

func (s *Neo4jStore) observe(name string, err error, d time.Duration) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveStatement(name, outcomeOf(err), d)
}

// neo4jTx 把托管事务适配为 Tx
type neo4jTx struct {
	tx    neo4j.ManagedTransaction
	store *Neo4jStore
}

func (t *neo4jTx) Run(ctx context.Context, st Statement) ([]Record, error) {
	start := time.Now()
	records, err := run(ctx, t.tx, st)
	var observed error
	if err != nil {
		observed = classify(st.Name, err)
	}
	t.store.observe(st.Name, observed, time.Since(start))
	return records, err
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, st Statement) ([]Record, error) {
	result, err := tx.Run(ctx, st.Cypher, st.Params)
	if err != nil {
		return nil, err
	}
	rows, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record(row.AsMap()))
	}
	return records, nil
}

// classify 把驱动错误映射到错误分类：连接类与可重试的瞬时错误为 STORE_UNAVAILABLE，
// 其余（语法、约束等）为 STORE_QUERY。
func classify(name string, err error) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return types.NewStoreUnavailable(fmt.Sprintf("statement %s: store unavailable", name), err)
	}
	return types.NewError(types.ErrStoreQuery, fmt.Sprintf("statement %s failed", name)).
		WithCause(err).
		WithHTTPStatus(500)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case types.IsCode(err, types.ErrStoreUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
