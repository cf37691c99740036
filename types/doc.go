// Copyright (c) HealthGraph Authors.
// Licensed under the MIT License.

/*
Package types 提供 healthgraph 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、ingest、llm、api
等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - MeasurementKind  ：四种健康测量节点（Food / Water / Sleep / Step）
  - Message / Role   ：对话消息，供 LLM 调用与聊天记录共用

# 错误分类

  - EXTRACTION_FAILURE：实体抽取失败或输出不符合契约（可重试）
  - STORE_UNAVAILABLE ：图存储或向量索引不可达（可重试，指数退避）
  - INGEST_VALIDATION ：导入批次校验失败（不可重试，整批回滚）

空检索结果不是错误，由 rag.Evidence.Empty 表达。
*/
package types
