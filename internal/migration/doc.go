// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package migration 管理聊天记录库（users、chat_sessions、chat_history）的 Schema 版本，
基于 golang-migrate 实现，支持 PostgreSQL、MySQL 与 SQLite。

迁移文件按方言内嵌在 migrations/<driver>/ 下。Migrator 复用
internal/database 打开的连接，Open 则为一次性迁移单独建连。
WriteStatus 供命令行输出状态表。

	m, err := migration.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
*/
package migration
