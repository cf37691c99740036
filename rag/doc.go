// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 实现健康数据的混合检索引擎：把一个自然语言问题转换为
若干条受约束的图查询（每个实体一条）和一次向量相似度检索，
执行后合并为交给下游 LLM 总结的证据文本。

# 核心接口/类型

  - Signals / ExtractSignals — 词法信号：显式日期、月份区间、测量类别
  - EntityExtractor — 基于 LLM 的实体抽取，输出经 JSON Schema 校验
  - QueryShape / Planner — 六种查询形态的表驱动选择与 Cypher 构建
  - VectorRetriever — 基于向量索引的相似度检索，索引缺失时返回空
  - Merge / Evidence — 结构化与非结构化证据的固定格式拼接
  - HealthRetriever — 编排入口 AnswerEvidence，抽取失败时降级为纯向量证据
  - Answerer — 证据到最终回答，证据为空时直接回复无数据

# 主要能力

  - 问题改写：带聊天历史时先改写为独立问题（Rephraser）
  - 并发检索：结构化分支与向量分支经 errgroup 并发执行，按固定顺序合并
  - 抽取缓存：可选 Redis 缓存实体抽取结果
  - Token 预算：回答前按 tiktoken 计数裁剪证据
*/
package rag
