// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package database 打开聊天记录所用的关系数据库（MySQL、PostgreSQL 或纯 Go 的 SQLite），
并通过 PoolManager 管理连接池。

# 核心类型

  - Driver / ParseDriver / DSN / Dialector：按 config.DatabaseConfig 选择
    GORM 方言并构造连接串，迁移与仓储共用同一套约定。
  - PoolManager：持有 *gorm.DB 与底层 *sql.DB，提供 Ping、Stats、
    后台健康检查，以及对瞬时错误自动重试的 WithTransaction。

SQLite 只允许一个打开的连接，避免并发写入时出现 database is locked。
*/
package database
