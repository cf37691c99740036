package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/healthgraph/internal/graphstore"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🧭 查询形态
// =============================================================================

// QueryShape 结构化查询形态
type QueryShape int

const (
	ShapeCategoryDate QueryShape = iota + 1
	ShapeCategoryRange
	ShapeDate
	ShapeRange
	ShapeCategory
	ShapeAny
)

// AllShapes 按优先级列出全部形态
var AllShapes = []QueryShape{ShapeCategoryDate, ShapeCategoryRange, ShapeDate, ShapeRange, ShapeCategory, ShapeAny}

var shapeNames = map[QueryShape]string{
	ShapeCategoryDate:  "category_date",
	ShapeCategoryRange: "category_range",
	ShapeDate:          "date",
	ShapeRange:         "range",
	ShapeCategory:      "category",
	ShapeAny:           "any",
}

// String 返回形态名，同时用作语句名后缀与指标标签
func (s QueryShape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// MarshalText 实现 encoding.TextMarshaler
func (s QueryShape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SelectShape 按优先级选择查询形态，最具体的条件优先
func SelectShape(s Signals) QueryShape {
	switch {
	case s.HasCategory() && s.HasExplicitDate():
		return ShapeCategoryDate
	case s.HasCategory() && s.HasRange():
		return ShapeCategoryRange
	case s.HasExplicitDate():
		return ShapeDate
	case s.HasRange():
		return ShapeRange
	case s.HasCategory():
		return ShapeCategory
	default:
		return ShapeAny
	}
}

// =============================================================================
// 🧱 语句构建
// =============================================================================

// shapeSpec 描述一种形态的节点标签与日期过滤
type shapeSpec struct {
	byCategory bool
	dateFilter func(s Signals, params map[string]any) string
}

func exactDate(s Signals, params map[string]any) string {
	params["date"] = s.ExplicitDate
	return " AND n.recordedOn = date($date)"
}

func monthRange(s Signals, params map[string]any) string {
	params["start"] = s.Range.Start
	params["end"] = s.Range.End
	return " AND n.recordedOn >= date($start) AND n.recordedOn < date($end)"
}

func noDate(Signals, map[string]any) string { return "" }

var shapeTable = map[QueryShape]shapeSpec{
	ShapeCategoryDate:  {byCategory: true, dateFilter: exactDate},
	ShapeCategoryRange: {byCategory: true, dateFilter: monthRange},
	ShapeDate:          {dateFilter: exactDate},
	ShapeRange:         {dateFilter: monthRange},
	ShapeCategory:      {byCategory: true, dateFilter: noDate},
	ShapeAny:           {dateFilter: noDate},
}

// 一跳双向展开：出边与入边在同一查询中 UNION ALL，行数上限在查询内生效
const structuredTemplate = `MATCH (u:User {user_id: $user_id})-->(n:%s)
WHERE n.name =~ $pattern%s
WITH DISTINCT n
CALL {
  WITH n
  MATCH (n)-[r]->(m)
  RETURN coalesce(n.name, n.username) + ' - ' + type(r) + ' -> ' + coalesce(m.name, m.username) AS output
  UNION ALL
  WITH n
  MATCH (n)<-[r]-(m)
  RETURN coalesce(m.name, m.username) + ' - ' + type(r) + ' -> ' + coalesce(n.name, n.username) AS output
}
RETURN output
LIMIT $limit`

// BuildStatement 为单个实体构建结构化查询。实体没有可匹配的 token 时返回 false。
func BuildStatement(shape QueryShape, entity string, s Signals, userID int64, limit int) (graphstore.Statement, bool) {
	entry, ok := shapeTable[shape]
	if !ok {
		return graphstore.Statement{}, false
	}
	pattern := EntityPattern(entity)
	if pattern == "" {
		return graphstore.Statement{}, false
	}

	params := map[string]any{
		"user_id": userID,
		"pattern": pattern,
		"limit":   int64(limit),
	}
	label := types.CategoryLabel
	if entry.byCategory {
		label = s.Category.Label()
	}
	filter := entry.dateFilter(s, params)

	return graphstore.Statement{
		Name:   graphstore.StmtStructuredPrefix + shape.String(),
		Cypher: fmt.Sprintf(structuredTemplate, label, filter),
		Params: params,
	}, true
}

// =============================================================================
// 🗺️ Planner
// =============================================================================

// PlannerConfig 规划器配置
type PlannerConfig struct {
	// 每个实体的行数上限
	LineLimit int
	// 并发查询数
	Concurrency int
}

// DefaultPlannerConfig 返回默认配置
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{LineLimit: 50, Concurrency: 4}
}

// Planner 为每个实体构建并执行结构化查询
type Planner struct {
	store    graphstore.Store
	config   PlannerConfig
	recorder Recorder
	logger   *zap.Logger
}

// NewPlanner 创建规划器
func NewPlanner(store graphstore.Store, cfg PlannerConfig, recorder Recorder, logger *zap.Logger) *Planner {
	def := DefaultPlannerConfig()
	if cfg.LineLimit <= 0 {
		cfg.LineLimit = def.LineLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		store:    store,
		config:   cfg,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "planner")),
	}
}

// Plan 为实体构建语句
func (p *Planner) Plan(entity string, s Signals, userID int64) (graphstore.Statement, bool) {
	return BuildStatement(SelectShape(s), entity, s, userID, p.config.LineLimit)
}

// Structured 为每个实体执行一条查询，并按实体顺序拼接结果行（不去重）。
// 任一查询失败即返回错误。
func (p *Planner) Structured(ctx context.Context, entities []string, s Signals, userID int64) (string, error) {
	if len(entities) == 0 {
		return "", nil
	}
	shape := SelectShape(s)
	p.recorder.RecordQueryShape(shape.String())

	results := make([][]string, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for i, entity := range entities {
		st, ok := BuildStatement(shape, entity, s, userID, p.config.LineLimit)
		if !ok {
			p.logger.Debug("entity has no matchable tokens", zap.String("entity", entity))
			continue
		}
		g.Go(func() error {
			rows, err := p.store.Read(gctx, st)
			if err != nil {
				return fmt.Errorf("structured query for %q: %w", entity, err)
			}
			results[i] = graphstore.Strings(rows, "output")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, r...)
	}
	p.logger.Debug("structured retrieval done",
		zap.String("shape", shape.String()),
		zap.Int("entities", len(entities)),
		zap.Int("lines", len(lines)),
	)
	return strings.Join(lines, "\n"), nil
}
