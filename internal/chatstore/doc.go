// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package chatstore 保存用户、聊天会话与问答历史（users、chat_sessions、chat_history），
基于 GORM，运行于 MySQL、PostgreSQL 或 SQLite。

会话历史通过 Store.History 转换为 []types.Message，作为追问改写的上下文。
写操作经 database.PoolManager.WithTransaction 执行，瞬时错误自动重试。
未找到记录返回 NOT_FOUND，唯一键冲突返回 HTTP 409 的 INVALID_REQUEST，
其余数据库错误统一为 STORE_QUERY。
*/
package chatstore
