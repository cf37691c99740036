// Package config 提供 HealthGraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 HEALTHGRAPH_）的顺序叠加，
// 覆盖图存储、LLM、向量化、检索、缓存、聊天数据库、日志与遥测。
package config
