// Package graphstore 是图存储适配层：执行参数化 Cypher 语句与向量索引检索，
// 以行（Record）的形式返回类型化字段。
package graphstore

import (
	"context"
	"time"
)

// Statement 一条参数化语句。Name 是稳定的语句标识，用于指标、追踪与测试替身。
type Statement struct {
	Name   string
	Cypher string
	Params map[string]any
}

// Record 一行结果，键为 RETURN 子句中的别名
type Record map[string]any

// String 返回 key 对应的字符串值，不存在或类型不符时返回空串
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Strings 收集所有行中 key 对应的字符串值，保持行序
func Strings(records []Record, key string) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if s, ok := rec[key].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Tx 写事务内的语句执行器
type Tx interface {
	Run(ctx context.Context, st Statement) ([]Record, error)
}

// Store 图存储接口。检索路径只读；所有写入都经由 Write 的单个事务完成，
// 回调返回错误时整个事务回滚。
type Store interface {
	Read(ctx context.Context, st Statement) ([]Record, error)
	Write(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Observer 接收每条语句的执行结果，由 metrics.Collector 实现
type Observer interface {
	ObserveStatement(statement, outcome string, duration time.Duration)
}

// 语句执行结果分类
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// 语句名。结构化查询按查询形态命名，其余按读写职责命名。
const (
	StmtMergeUser         = "user.merge"
	StmtCreateMeasurement = "measurement.create"
	StmtDeleteUser        = "user.delete"

	StmtStructuredPrefix = "structured."

	StmtVectorIndexExists = "vector.index_exists"
	StmtVectorIndexCreate = "vector.index_create"
	StmtVectorQuery       = "vector.query"
	StmtPendingEmbeddings = "vector.pending"
	StmtSetEmbeddings     = "vector.set_embeddings"
)
