// Copyright (c) HealthGraph Authors.
// Licensed under the MIT License.

/*
Package graphstore 是图存储适配层（薄封装）。

# 概述

检索与导入只依赖 Store 接口：Read 在只读托管事务中执行一条语句，
Write 把一组语句放进单个写事务。Neo4jStore 是基于
neo4j-go-driver/v5 的实现，构造时显式注入，不使用包级单例。

# 错误分类

  - 连接失败、会话过期、驱动标记为可重试的瞬时错误 → STORE_UNAVAILABLE，
    Read 按指数退避重试
  - 语法错误、约束冲突等 → STORE_QUERY，直接返回

# 可观测性

每条语句按 Statement.Name 上报耗时与结果（Observer），并创建
OpenTelemetry span。
*/
package graphstore
