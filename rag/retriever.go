package rag

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/healthgraph/types"
)

const instrumentationName = "github.com/BaSui01/healthgraph/rag"

// 证据结果分类，用于指标标签
const (
	EvidenceComplete = "complete"
	EvidenceDegraded = "degraded"
	EvidenceEmpty    = "empty"
)

// Recorder 检索指标接口，由 metrics.Collector 实现
type Recorder interface {
	RecordQueryShape(shape string)
	RecordExtraction(outcome string)
	RecordEvidence(result string, duration time.Duration)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordQueryShape(string)              {}
func (nopRecorder) RecordExtraction(string)              {}
func (nopRecorder) RecordEvidence(string, time.Duration) {}
func (nopRecorder) RecordCacheHit(string)                {}
func (nopRecorder) RecordCacheMiss(string)               {}

// RetrieverConfig 编排器配置
type RetrieverConfig struct {
	// BranchTimeout 结构化分支与向量分支各自的超时，0 表示只受调用方 ctx 约束
	BranchTimeout time.Duration
}

// HealthRetriever 混合检索编排器：
// 可选改写 → 词法信号 + 实体抽取 → 每实体一条结构化查询，与向量检索并发 → 合并。
type HealthRetriever struct {
	extractor *EntityExtractor
	planner   *Planner
	vector    *VectorRetriever
	rephraser *Rephraser
	config    RetrieverConfig
	recorder  Recorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// RetrieverOption 编排器选项
type RetrieverOption func(*HealthRetriever)

// WithRephraser 启用基于聊天历史的问题改写
func WithRephraser(r *Rephraser) RetrieverOption {
	return func(h *HealthRetriever) { h.rephraser = r }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) RetrieverOption {
	return func(h *HealthRetriever) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewHealthRetriever 创建编排器
func NewHealthRetriever(extractor *EntityExtractor, planner *Planner, vector *VectorRetriever, cfg RetrieverConfig, logger *zap.Logger, opts ...RetrieverOption) *HealthRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthRetriever{
		extractor: extractor,
		planner:   planner,
		vector:    vector,
		config:    cfg,
		recorder:  nopRecorder{},
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "health_retriever")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AnswerEvidence 为问题构建合并证据。
//
// 结构化分支（实体抽取或图查询）失败时降级为纯向量证据；向量分支失败时
// 非结构化一侧为空。两侧都失败时返回错误，除非两侧都只是超时，
// 此时按无证据处理。证据为空不是错误，用 Evidence.Empty 判断。
func (h *HealthRetriever) AnswerEvidence(ctx context.Context, question string, userID int64, history []types.Message) (*Evidence, error) {
	start := time.Now()
	ctx, span := h.tracer.Start(ctx, "rag.answer_evidence", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("history_len", len(history)),
	))
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "question is required").WithHTTPStatus(http.StatusBadRequest)
	}

	standalone := question
	if h.rephraser != nil && len(history) > 0 {
		rephrased, err := h.rephraser.Rephrase(ctx, question, history)
		if err != nil {
			h.logger.Warn("rephrase failed, using raw question", zap.Error(err))
		} else {
			standalone = rephrased
		}
	}

	signals := ExtractSignals(standalone)
	ev := &Evidence{
		Question:     standalone,
		Signals:      signals,
		Shape:        SelectShape(signals),
		Entities:     []string{},
		Unstructured: []string{},
	}

	var structErr, vectorErr error
	var g errgroup.Group

	g.Go(func() error {
		bctx, cancel := h.branchContext(ctx)
		defer cancel()

		entities, err := h.extractor.Extract(bctx, standalone)
		if err != nil {
			structErr = err
			return nil
		}
		ev.Entities = entities

		text, err := h.planner.Structured(bctx, entities, signals, userID)
		if err != nil {
			structErr = err
			return nil
		}
		ev.Structured = text
		return nil
	})

	g.Go(func() error {
		bctx, cancel := h.branchContext(ctx)
		defer cancel()

		docs, err := h.vector.Search(bctx, standalone, userID)
		if err != nil {
			vectorErr = err
			return nil
		}
		ev.Unstructured = docs
		return nil
	})

	// 两个分支都不返回错误，只为等待
	_ = g.Wait()

	if structErr != nil && vectorErr != nil && !(isTimeout(structErr) && isTimeout(vectorErr)) {
		err := errors.Join(vectorErr, structErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.recorder.RecordEvidence(EvidenceDegraded, time.Since(start))
		h.logger.Error("evidence retrieval failed", zap.Error(err))
		return nil, err
	}
	if structErr != nil {
		ev.Degraded = true
		ev.Warnings = append(ev.Warnings, "structured retrieval skipped: "+describe(structErr))
		h.logger.Warn("structured branch failed, using vector-only evidence", zap.Error(structErr))
	}
	if vectorErr != nil {
		ev.Degraded = true
		ev.Warnings = append(ev.Warnings, "vector retrieval skipped: "+describe(vectorErr))
		h.logger.Warn("vector branch failed", zap.Error(vectorErr))
	}

	ev.Text = Merge(ev.Structured, ev.Unstructured)

	result := EvidenceComplete
	switch {
	case ev.Empty():
		result = EvidenceEmpty
	case ev.Degraded:
		result = EvidenceDegraded
	}
	h.recorder.RecordEvidence(result, time.Since(start))
	span.SetAttributes(
		attribute.String("shape", ev.Shape.String()),
		attribute.Int("entities", len(ev.Entities)),
		attribute.Int("documents", len(ev.Unstructured)),
		attribute.String("result", result),
	)

	h.logger.Info("evidence retrieved",
		zap.Int64("user_id", userID),
		zap.String("shape", ev.Shape.String()),
		zap.Strings("entities", ev.Entities),
		zap.Int("documents", len(ev.Unstructured)),
		zap.String("result", result),
		zap.Duration("duration", time.Since(start)),
	)
	return ev, nil
}

func (h *HealthRetriever) branchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.BranchTimeout > 0 {
		return context.WithTimeout(ctx, h.config.BranchTimeout)
	}
	return context.WithCancel(ctx)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || types.IsCode(err, types.ErrTimeout)
}

func describe(err error) string {
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	if isTimeout(err) {
		return string(types.ErrTimeout)
	}
	return err.Error()
}
