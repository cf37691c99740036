package rag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/healthgraph/types"
)

// DateLayout 图中 recordedOn 的文本格式
const DateLayout = "2006-01-02"

var (
	explicitDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	monthYearPattern    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
)

// DateRange is a half-open interval [Start, End) of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Signals holds the lexical hints found in a question. At most one of
// ExplicitDate and Range is set.
type Signals struct {
	ExplicitDate string                `json:"explicit_date,omitempty"`
	Range        *DateRange            `json:"date_range,omitempty"`
	Category     types.MeasurementKind `json:"measurement_category,omitempty"`
}

// HasCategory reports whether a measurement category was detected.
func (s Signals) HasCategory() bool { return s.Category != "" }

// HasExplicitDate reports whether a single date was detected.
func (s Signals) HasExplicitDate() bool { return s.ExplicitDate != "" }

// HasRange reports whether a month range was detected.
func (s Signals) HasRange() bool { return s.Range != nil }

// ExtractSignals 从问题中提取词法信号。纯函数，不会失败。
func ExtractSignals(question string) Signals {
	var s Signals
	s.ExplicitDate = findExplicitDate(question)
	if s.ExplicitDate == "" {
		s.Range = findMonthRange(question)
	}
	s.Category = findCategory(question)
	return s
}

// findExplicitDate 返回第一个合法的 YYYY-MM-DD 子串，非法日历日期被跳过
func findExplicitDate(question string) string {
	for _, candidate := range explicitDatePattern.FindAllString(question, -1) {
		if _, err := time.Parse(DateLayout, candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func findMonthRange(question string) *DateRange {
	m := monthYearPattern.FindStringSubmatch(question)
	if m == nil {
		return nil
	}
	month, err := time.Parse("January", strings.ToUpper(m[1][:1])+strings.ToLower(m[1][1:]))
	if err != nil {
		return nil
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}

	start := time.Date(year, month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return &DateRange{
		Start: formatDate(start),
		End:   formatDate(end),
	}
}

// formatDate 始终输出四位年份，避免 time.Format 对小年份的处理差异
func formatDate(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// categoryPatterns 关键词只在词首匹配："eating" 命中 eat，"weather" 不命中
var categoryPatterns = buildCategoryPatterns()

func buildCategoryPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(types.AllKinds))
	for i, kind := range types.AllKinds {
		stems := kind.Keywords()
		for j, stem := range stems {
			stems[j] = regexp.QuoteMeta(stem)
		}
		patterns[i] = regexp.MustCompile(`(?i)\b(?:` + strings.Join(stems, "|") + `)`)
	}
	return patterns
}

func findCategory(question string) types.MeasurementKind {
	for i, pattern := range categoryPatterns {
		if pattern.MatchString(question) {
			return types.AllKinds[i]
		}
	}
	return ""
}
