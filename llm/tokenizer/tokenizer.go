package tokenizer

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tokenizer 是统一的 Token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// MaxTokens 返回模型的最大上下文长度
	MaxTokens() int

	// Name 返回分词器的名称
	Name() string
}

// ForModel 为模型选择分词器：OpenAI 家族用 tiktoken（编码数据不可用时回落到估算器），
// 其他模型直接使用估算器。
func ForModel(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if t, ok := newTiktokenTokenizer(model); ok {
		return &fallbackTokenizer{
			primary:  t,
			fallback: NewEstimatorTokenizer(model, t.MaxTokens()),
			logger:   logger.With(zap.String("component", "tokenizer")),
		}
	}
	return NewEstimatorTokenizer(model, 0)
}

// fallbackTokenizer 首选失败时使用估算器，并只告警一次
type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger
	warnOnce sync.Once
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	n, err := f.primary.CountTokens(text)
	if err == nil {
		return n, nil
	}
	f.warnOnce.Do(func() {
		f.logger.Warn("tiktoken unavailable, using estimator", zap.Error(err))
	})
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

func (f *fallbackTokenizer) Name() string { return f.primary.Name() }

// TruncateLines 从尾部丢弃整行，直到文本不超过 budget 个 token。
// 返回保留的文本和被丢弃的行数；budget <= 0 表示不限制。
func TruncateLines(t Tokenizer, text string, budget int) (string, int, error) {
	if budget <= 0 || text == "" {
		return text, 0, nil
	}
	n, err := t.CountTokens(text)
	if err != nil {
		return "", 0, err
	}
	if n <= budget {
		return text, 0, nil
	}

	lines := strings.Split(text, "\n")
	dropped := 0
	for len(lines) > 0 {
		lines = lines[:len(lines)-1]
		dropped++
		kept := strings.Join(lines, "\n")
		n, err := t.CountTokens(kept)
		if err != nil {
			return "", 0, err
		}
		if n <= budget {
			return kept, dropped, nil
		}
	}
	return "", dropped, nil
}
