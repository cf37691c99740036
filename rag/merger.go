package rag

import "strings"

// 证据文本的固定段落标题与文档分隔符
const (
	StructuredHeader   = "Structured Data:"
	UnstructuredHeader = "Unstructured Data:"
	DocumentPrefix     = "#Document "
)

// Merge 拼接结构化与非结构化证据。两个标题始终存在；
// 不做排序、去重或两侧的相互校正。
func Merge(structured string, unstructured []string) string {
	docs := make([]string, len(unstructured))
	for i, d := range unstructured {
		docs[i] = DocumentPrefix + d
	}

	var sb strings.Builder
	sb.WriteString(StructuredHeader)
	sb.WriteString("\n")
	sb.WriteString(structured)
	sb.WriteString("\n\n")
	sb.WriteString(UnstructuredHeader)
	sb.WriteString("\n")
	sb.WriteString(strings.Join(docs, " "))
	return sb.String()
}

// Evidence is the merged retrieval result for one question.
type Evidence struct {
	// Question is the standalone question that retrieval actually ran on.
	Question     string     `json:"question"`
	Text         string     `json:"text"`
	Structured   string     `json:"structured"`
	Unstructured []string   `json:"unstructured"`
	Shape        QueryShape `json:"shape"`
	Signals      Signals    `json:"signals"`
	Entities     []string   `json:"entities"`
	// Degraded is set when a branch failed and the evidence was built
	// from whatever remained.
	Degraded bool     `json:"degraded,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports the "no matching evidence" outcome. It is a legitimate
// answer, not a failure.
func (e *Evidence) Empty() bool {
	return e == nil || (strings.TrimSpace(e.Structured) == "" && len(e.Unstructured) == 0)
}
