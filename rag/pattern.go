package rag

import (
	"regexp"
	"strings"
)

// MaxPatternTokens 模式中参与排列的最大 token 数，5 个 token 对应 120 种排列
const MaxPatternTokens = 5

// 全文索引的控制字符，出现在实体中会被替换为空白
var indexControlChars = regexp.MustCompile(`[+\-&|!(){}\[\]^"~*?:\\/]`)

// PatternTokens 把实体拆成用于匹配的 token
func PatternTokens(entity string) []string {
	tokens := strings.Fields(indexControlChars.ReplaceAllString(entity, " "))
	if len(tokens) > MaxPatternTokens {
		tokens = tokens[:MaxPatternTokens]
	}
	return tokens
}

// EntityPattern 构建“以任意顺序包含全部 token，忽略大小写”的单个锚定正则：
//
//	(?i)^.*(?:a.*b|b.*a).*$
//
// 实体中没有 token 时返回空串。
func EntityPattern(entity string) string {
	tokens := PatternTokens(entity)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}

	var alternatives []string
	seen := make(map[string]struct{})
	permute(quoted, 0, func(order []string) {
		alt := strings.Join(order, ".*")
		if _, dup := seen[alt]; dup {
			return
		}
		seen[alt] = struct{}{}
		alternatives = append(alternatives, alt)
	})

	if len(alternatives) == 1 {
		return "(?i)^.*" + alternatives[0] + ".*$"
	}
	return "(?i)^.*(?:" + strings.Join(alternatives, "|") + ").*$"
}

// permute 以 Heap 风格的原地交换枚举全部排列，首个排列为原始顺序
func permute(items []string, k int, visit func([]string)) {
	if k == len(items) {
		visit(items)
		return
	}
	for i := k; i < len(items); i++ {
		items[k], items[i] = items[i], items[k]
		permute(items, k+1, visit)
		items[k], items[i] = items[i], items[k]
	}
}
