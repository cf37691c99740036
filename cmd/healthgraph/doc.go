// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package main 提供 HealthGraph 服务端程序与运维命令入口。

# 概述

cmd/healthgraph 装配图存储、LLM、向量化与聊天存储，对外提供 HTTP API，
并提供数据导入、问答、索引构建与数据库迁移等子命令。

# 核心类型

  - Server      主服务器，API 与 Metrics 两个端点由同一个 server.Manager 管理
  - app         serve 与 CLI 共用的组件集合，检索管线与聊天存储按需构建
  - Middleware  HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、ingest、delete、ask、index、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、
    MetricsMiddleware、CORS、RateLimiter（基于 IP）、APIKeyAuth
  - 优雅关闭：信号 → 关闭 HTTP → 释放存储连接 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
