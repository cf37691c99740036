package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder 接收每次 LLM 调用的结果，由 metrics.Collector 实现
type Recorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration)
}

// InstrumentedProvider 为 Provider 增加日志与指标
type InstrumentedProvider struct {
	inner    Provider
	model    string
	recorder Recorder
	logger   *zap.Logger
}

// NewInstrumentedProvider 包装 p。recorder 可为 nil。
func NewInstrumentedProvider(p Provider, model string, recorder Recorder, logger *zap.Logger) *InstrumentedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedProvider{
		inner:    p,
		model:    model,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "llm"), zap.String("provider", p.Name())),
	}
}

// Completion 实现 Provider
func (p *InstrumentedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	resp, err := p.inner.Completion(ctx, req)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		p.logger.Warn("completion failed",
			zap.String("model", model),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("completion finished",
			zap.String("model", model),
			zap.Duration("latency", elapsed),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}
	if p.recorder != nil {
		p.recorder.RecordLLMRequest(p.inner.Name(), model, status, elapsed)
	}
	return resp, err
}

// HealthCheck 实现 Provider
func (p *InstrumentedProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Name 实现 Provider
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }
