package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/graphstore"
	"github.com/BaSui01/healthgraph/types"
)

const instrumentationName = "github.com/BaSui01/healthgraph/ingest"

// 导入批次状态，用于指标标签
const (
	BatchCommitted = "committed"
	BatchRejected  = "rejected"
	BatchFailed    = "failed"
)

const (
	mergeUserCypher = `MERGE (u:User {user_id: $user_id})
SET u.username = $username
RETURN u.user_id AS user_id`

	// 标签与关系类型不能参数化，按测量类型填入
	createMeasurementTemplate = `MATCH (u:User {user_id: $user_id})
CREATE (n:%s:%s {name: $name, recordedOn: date($date)})
SET n += $props
CREATE (u)-[:%s]->(n)
RETURN elementId(n) AS id`

	deleteUserCypher = `MATCH (u:User {user_id: $user_id})
OPTIONAL MATCH (u)-->(n)
DETACH DELETE n, u`
)

// Recorder 导入指标接口，由 metrics.Collector 实现
type Recorder interface {
	RecordIngestedRows(kind string, rows int)
	RecordIngestBatch(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngestedRows(string, int) {}
func (nopRecorder) RecordIngestBatch(string)       {}

// Summary 一次导入的结果
type Summary struct {
	UserID   int64          `json:"user_id"`
	Username string         `json:"username"`
	Rows     map[string]int `json:"rows"`
	Total    int            `json:"total"`
	Duration time.Duration  `json:"duration"`
}

// Writer 图数据写入器。每个用户的一批数据在单个写事务中完成。
type Writer struct {
	store    graphstore.Store
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// WriterOption 写入器选项
type WriterOption func(*Writer)

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) WriterOption {
	return func(w *Writer) {
		if r != nil {
			w.recorder = r
		}
	}
}

// NewWriter 创建写入器
func NewWriter(store graphstore.Store, logger *zap.Logger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:    store,
		recorder: nopRecorder{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "ingest_writer")),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ingest 校验并写入一个用户的全部数据集。
// 校验失败返回 ErrIngestValidation 且不触碰存储；写入失败时整批回滚。
func (w *Writer) Ingest(ctx context.Context, user User, data Datasets) (Summary, error) {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "ingest.write", trace.WithAttributes(
		attribute.Int64("user_id", user.ID),
		attribute.Int("datasets", len(data)),
	))
	defer span.End()

	rows, err := prepare(user, data)
	if err != nil {
		w.recorder.RecordIngestBatch(BatchRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		w.logger.Warn("ingestion rejected", zap.Int64("user_id", user.ID), zap.Error(err))
		return Summary{}, err
	}

	summary := Summary{
		UserID:   user.ID,
		Username: user.Username,
		Rows:     make(map[string]int, len(types.AllKinds)),
	}

	err = w.store.Write(ctx, func(ctx context.Context, tx graphstore.Tx) error {
		if _, err := tx.Run(ctx, mergeUserStatement(user)); err != nil {
			return fmt.Errorf("merge user: %w", err)
		}
		for _, m := range rows {
			recs, err := tx.Run(ctx, createStatement(user.ID, m))
			if err != nil {
				return fmt.Errorf("create %s node: %w", m.kind, err)
			}
			if len(recs) == 0 {
				return types.NewError(types.ErrStoreQuery, "measurement node was not created")
			}
		}
		return nil
	})
	if err != nil {
		w.recorder.RecordIngestBatch(BatchFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("ingestion failed, batch rolled back", zap.Int64("user_id", user.ID), zap.Error(err))
		return Summary{}, err
	}

	for _, m := range rows {
		summary.Rows[m.kind.Label()]++
	}
	for kind, n := range summary.Rows {
		w.recorder.RecordIngestedRows(kind, n)
	}
	summary.Total = len(rows)
	summary.Duration = time.Since(start)
	w.recorder.RecordIngestBatch(BatchCommitted)
	span.SetAttributes(attribute.Int("rows", summary.Total))

	w.logger.Info("ingestion committed",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Int("rows", summary.Total),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Delete 级联删除用户及其一跳可达的所有节点。用户不存在时为空操作。
func (w *Writer) Delete(ctx context.Context, userID int64) error {
	if userID <= 0 {
		// 这样的用户不可能被写入，按删除不存在的用户处理
		return nil
	}
	ctx, span := w.tracer.Start(ctx, "ingest.delete", trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	err := w.store.Write(ctx, func(ctx context.Context, tx graphstore.Tx) error {
		_, err := tx.Run(ctx, graphstore.Statement{
			Name:   graphstore.StmtDeleteUser,
			Cypher: deleteUserCypher,
			Params: map[string]any{"user_id": userID},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete user %d: %w", userID, err)
	}
	w.logger.Info("user deleted", zap.Int64("user_id", userID))
	return nil
}

func mergeUserStatement(user User) graphstore.Statement {
	return graphstore.Statement{
		Name:   graphstore.StmtMergeUser,
		Cypher: mergeUserCypher,
		Params: map[string]any{"user_id": user.ID, "username": user.Username},
	}
}

func createStatement(userID int64, m measurement) graphstore.Statement {
	return graphstore.Statement{
		Name:   graphstore.StmtCreateMeasurement,
		Cypher: fmt.Sprintf(createMeasurementTemplate, m.kind.Label(), types.CategoryLabel, m.kind.Relationship()),
		Params: map[string]any{
			"user_id": userID,
			"name":    m.name,
			"date":    m.date,
			"props":   m.props,
		},
	}
}
