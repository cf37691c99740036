// Package graphmem 提供 graphstore.Store 的内存实现，供检索与导入测试使用。
//
// 它按 Statement.Name 与参数解释语句语义，只从 Cypher 中取出节点标签，
// 写事务基于状态副本提交，回调出错时整体丢弃，行为与真实存储的回滚一致。
package graphmem

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/healthgraph/internal/graphstore"
	"github.com/BaSui01/healthgraph/types"
)

// Node 图节点
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// HasLabel 判断节点是否带有标签
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Rel 有向关系
type Rel struct {
	From string
	To   string
	Type string
}

type state struct {
	nodes   []*Node
	rels    []Rel
	nextID  int
	indexes map[string]int
}

func (s *state) clone() *state {
	c := &state{
		nodes:   make([]*Node, len(s.nodes)),
		rels:    append([]Rel(nil), s.rels...),
		nextID:  s.nextID,
		indexes: make(map[string]int, len(s.indexes)),
	}
	for i, n := range s.nodes {
		props := make(map[string]any, len(n.Props))
		for k, v := range n.Props {
			props[k] = v
		}
		c.nodes[i] = &Node{ID: n.ID, Labels: append([]string(nil), n.Labels...), Props: props}
	}
	for k, v := range s.indexes {
		c.indexes[k] = v
	}
	return c
}

// Graph 内存图存储
type Graph struct {
	mu         sync.RWMutex
	st         *state
	failures   map[string]error
	failAll    error
	executed   []string
	executedMu sync.Mutex
}

var _ graphstore.Store = (*Graph)(nil)

// New 创建空图
func New() *Graph {
	return &Graph{
		st:       &state{indexes: make(map[string]int)},
		failures: make(map[string]error),
	}
}

// FailOn 让名为 name 的语句返回 err
func (g *Graph) FailOn(name string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[name] = err
}

// FailAll 让所有语句返回 err；传 nil 恢复
func (g *Graph) FailAll(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAll = err
}

// Executed 返回已执行语句名（按执行顺序）
func (g *Graph) Executed() []string {
	g.executedMu.Lock()
	defer g.executedMu.Unlock()
	return append([]string(nil), g.executed...)
}

// Nodes 返回带有 label 的节点快照
func (g *Graph) Nodes(label string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, n := range g.st.nodes {
		if n.HasLabel(label) {
			out = append(out, *n)
		}
	}
	return out
}

// CountRels 返回类型为 relType 的关系数
func (g *Graph) CountRels(relType string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, r := range g.st.rels {
		if r.Type == relType {
			count++
		}
	}
	return count
}

// HasIndex 判断向量索引是否存在
func (g *Graph) HasIndex(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.st.indexes[name]
	return ok
}

// Read 实现 graphstore.Store
func (g *Graph) Read(ctx context.Context, st graphstore.Statement) ([]graphstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable("context done", err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := g.fault(st.Name); err != nil {
		return nil, err
	}
	if !isReadOnly(st.Name) {
		return nil, fmt.Errorf("graphmem: %s is not a read statement", st.Name)
	}
	return exec(g.st, st)
}

// Write 实现 graphstore.Store
func (g *Graph) Write(ctx context.Context, fn func(ctx context.Context, tx graphstore.Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	draft := g.st.clone()
	if err := fn(ctx, &tx{g: g, st: draft}); err != nil {
		return err
	}
	g.st = draft
	return nil
}

// Ping 实现 graphstore.Store
func (g *Graph) Ping(context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.failAll
}

// Close 实现 graphstore.Store
func (g *Graph) Close(context.Context) error { return nil }

type tx struct {
	g  *Graph
	st *state
}

func (t *tx) Run(ctx context.Context, st graphstore.Statement) ([]graphstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.g.fault(st.Name); err != nil {
		return nil, err
	}
	return exec(t.st, st)
}

// fault 记录语句并返回注入的错误；调用方持有 g.mu
func (g *Graph) fault(name string) error {
	g.executedMu.Lock()
	g.executed = append(g.executed, name)
	g.executedMu.Unlock()

	if g.failAll != nil {
		return g.failAll
	}
	return g.failures[name]
}

func isReadOnly(name string) bool {
	switch name {
	case graphstore.StmtVectorIndexExists, graphstore.StmtVectorQuery, graphstore.StmtPendingEmbeddings:
		return true
	}
	return strings.HasPrefix(name, graphstore.StmtStructuredPrefix)
}

func exec(s *state, st graphstore.Statement) ([]graphstore.Record, error) {
	p := st.Params
	switch {
	case st.Name == graphstore.StmtMergeUser:
		return mergeUser(s, p)
	case st.Name == graphstore.StmtCreateMeasurement:
		return createMeasurement(s, st)
	case st.Name == graphstore.StmtDeleteUser:
		return deleteUser(s, p)
	case strings.HasPrefix(st.Name, graphstore.StmtStructuredPrefix):
		return structured(s, st)
	case st.Name == graphstore.StmtVectorIndexExists:
		if _, ok := s.indexes[str(p["index"])]; ok {
			return []graphstore.Record{{"name": str(p["index"])}}, nil
		}
		return nil, nil
	case st.Name == graphstore.StmtVectorIndexCreate:
		if _, ok := s.indexes[str(p["index"])]; !ok {
			s.indexes[str(p["index"])] = int(toInt(p["dimensions"]))
		}
		return nil, nil
	case st.Name == graphstore.StmtVectorQuery:
		return vectorQuery(s, p)
	case st.Name == graphstore.StmtPendingEmbeddings:
		return pending(s, p)
	case st.Name == graphstore.StmtSetEmbeddings:
		return setEmbeddings(s, p)
	}
	return nil, fmt.Errorf("graphmem: unknown statement %q", st.Name)
}

func findUser(s *state, userID int64) *Node {
	for _, n := range s.nodes {
		if n.HasLabel(types.UserLabel) && toInt(n.Props["user_id"]) == userID {
			return n
		}
	}
	return nil
}

func findNode(s *state, id string) *Node {
	for _, n := range s.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (s *state) newNode(labels []string, props map[string]any) *Node {
	s.nextID++
	n := &Node{ID: fmt.Sprintf("n%d", s.nextID), Labels: labels, Props: props}
	s.nodes = append(s.nodes, n)
	return n
}

func mergeUser(s *state, p map[string]any) ([]graphstore.Record, error) {
	userID := toInt(p["user_id"])
	u := findUser(s, userID)
	if u == nil {
		u = s.newNode([]string{types.UserLabel}, map[string]any{"user_id": userID})
	}
	u.Props["username"] = p["username"]
	return []graphstore.Record{{"user_id": userID}}, nil
}

// 测量类别只出现在 Cypher 的节点标签里，这里按同样的位置取出
var (
	createLabelPattern     = regexp.MustCompile(`CREATE \(n:(\w+):`)
	structuredLabelPattern = regexp.MustCompile(`-->\(n:(\w+)\)`)
)

func nodeLabel(pattern *regexp.Regexp, st graphstore.Statement) (string, error) {
	m := pattern.FindStringSubmatch(st.Cypher)
	if m == nil {
		return "", fmt.Errorf("graphmem: no node label in %s cypher", st.Name)
	}
	return m[1], nil
}

func createMeasurement(s *state, st graphstore.Statement) ([]graphstore.Record, error) {
	p := st.Params
	label, err := nodeLabel(createLabelPattern, st)
	if err != nil {
		return nil, err
	}
	kind, ok := types.ParseKind(label)
	if !ok {
		return nil, fmt.Errorf("graphmem: unknown kind %q", label)
	}
	u := findUser(s, toInt(p["user_id"]))
	if u == nil {
		// MATCH 无结果时 CREATE 不执行
		return nil, nil
	}

	props := map[string]any{
		"name":       p["name"],
		"recordedOn": p["date"],
	}
	if extra, ok := p["props"].(map[string]any); ok {
		for k, v := range extra {
			props[k] = v
		}
	}
	n := s.newNode([]string{kind.Label(), types.CategoryLabel}, props)
	s.rels = append(s.rels, Rel{From: u.ID, To: n.ID, Type: kind.Relationship()})
	return []graphstore.Record{{"id": n.ID}}, nil
}

func deleteUser(s *state, p map[string]any) ([]graphstore.Record, error) {
	u := findUser(s, toInt(p["user_id"]))
	if u == nil {
		return nil, nil
	}
	doomed := map[string]bool{u.ID: true}
	for _, r := range s.rels {
		if r.From == u.ID {
			doomed[r.To] = true
		}
	}

	nodes := s.nodes[:0]
	for _, n := range s.nodes {
		if !doomed[n.ID] {
			nodes = append(nodes, n)
		}
	}
	s.nodes = nodes

	rels := s.rels[:0]
	for _, r := range s.rels {
		if !doomed[r.From] && !doomed[r.To] {
			rels = append(rels, r)
		}
	}
	s.rels = rels
	return []graphstore.Record{{"deleted": int64(len(doomed))}}, nil
}

func structured(s *state, st graphstore.Statement) ([]graphstore.Record, error) {
	p := st.Params
	label, err := nodeLabel(structuredLabelPattern, st)
	if err != nil {
		return nil, err
	}
	u := findUser(s, toInt(p["user_id"]))
	if u == nil {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + str(p["pattern"]) + ")$")
	if err != nil {
		return nil, fmt.Errorf("graphmem: invalid pattern: %w", err)
	}
	date, hasDate := p["date"].(string)
	start, hasStart := p["start"].(string)
	end, _ := p["end"].(string)
	limit := toInt(p["limit"])

	seen := map[string]bool{}
	var candidates []*Node
	for _, r := range s.rels {
		if r.From != u.ID || seen[r.To] {
			continue
		}
		n := findNode(s, r.To)
		if n == nil || !n.HasLabel(types.CategoryLabel) || !n.HasLabel(label) {
			continue
		}
		if !re.MatchString(str(n.Props["name"])) {
			continue
		}
		recorded := str(n.Props["recordedOn"])
		if hasDate && recorded != date {
			continue
		}
		if hasStart && (recorded < start || recorded >= end) {
			continue
		}
		seen[n.ID] = true
		candidates = append(candidates, n)
	}

	var out []graphstore.Record
	emit := func(line string) bool {
		if limit > 0 && int64(len(out)) >= limit {
			return false
		}
		out = append(out, graphstore.Record{"output": line})
		return true
	}
	for _, n := range candidates {
		for _, r := range s.rels {
			if r.From == n.ID {
				if !emit(display(n) + " - " + r.Type + " -> " + display(findNode(s, r.To))) {
					return out, nil
				}
			}
		}
		for _, r := range s.rels {
			if r.To == n.ID {
				if !emit(display(findNode(s, r.From)) + " - " + r.Type + " -> " + display(n)) {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func display(n *Node) string {
	if n == nil {
		return ""
	}
	if name, ok := n.Props["name"]; ok && name != nil {
		return str(name)
	}
	return str(n.Props["username"])
}

func vectorQuery(s *state, p map[string]any) ([]graphstore.Record, error) {
	index := str(p["index"])
	if _, ok := s.indexes[index]; !ok {
		return nil, fmt.Errorf("graphmem: there is no such vector schema index: %s", index)
	}
	query, _ := p["embedding"].([]float64)
	candidates := toInt(p["candidates"])
	k := toInt(p["k"])

	type scored struct {
		node  *Node
		score float64
	}
	var hits []scored
	for _, n := range s.nodes {
		emb, ok := n.Props["embedding"].([]float64)
		if !ok || !n.HasLabel(types.CategoryLabel) {
			continue
		}
		hits = append(hits, scored{n, cosine(query, emb)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if candidates > 0 && int64(len(hits)) > candidates {
		hits = hits[:candidates]
	}

	u := findUser(s, toInt(p["user_id"]))
	var out []graphstore.Record
	for _, h := range hits {
		if u == nil || !owns(s, u, h.node) {
			continue
		}
		if k > 0 && int64(len(out)) >= k {
			break
		}
		out = append(out, graphstore.Record{"text": str(h.node.Props["name"]), "score": h.score})
	}
	return out, nil
}

func owns(s *state, u, n *Node) bool {
	for _, r := range s.rels {
		if r.From == u.ID && r.To == n.ID {
			return true
		}
	}
	return false
}

func pending(s *state, p map[string]any) ([]graphstore.Record, error) {
	limit := toInt(p["limit"])
	var out []graphstore.Record
	for _, n := range s.nodes {
		if !n.HasLabel(types.CategoryLabel) {
			continue
		}
		if emb, ok := n.Props["embedding"].([]float64); ok && len(emb) > 0 {
			continue
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, graphstore.Record{"id": n.ID, "text": str(n.Props["name"])})
	}
	return out, nil
}

func setEmbeddings(s *state, p map[string]any) ([]graphstore.Record, error) {
	rows, _ := p["rows"].([]map[string]any)
	for _, row := range rows {
		n := findNode(s, str(row["id"]))
		if n == nil {
			continue
		}
		n.Props["embedding"] = row["embedding"]
	}
	return nil, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float64:
		return int64(x)
	}
	return 0
}
