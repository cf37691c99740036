package tokenizer

import "unicode"

// 估算比例：中日韩字符约 1.5 字符/token，其余约 4 字符/token
const (
	cjkRunesPerToken   = 1.5
	otherRunesPerToken = 4.0
	defaultMaxTokens   = 4096
)

// EstimatorTokenizer 按字符类别估算 token 数，用于没有精确编码表的模型
// （Anthropic 与 OpenAI 兼容厂商）以及 tiktoken 数据加载失败时的回落。
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer 创建估算器，maxTokens <= 0 时取 4096
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens 非空文本至少计 1 个 token
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)/cjkRunesPerToken + float64(other)/otherRunesPerToken)
	return max(n, 1), nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

var cjkTables = []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul}

func isCJK(r rune) bool {
	if r >= 0x3000 && r <= 0x303F || r >= 0xFF00 && r <= 0xFFEF {
		// 全角标点同样按 CJK 计
		return true
	}
	return unicode.IsOneOf(cjkTables, r)
}
