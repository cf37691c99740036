// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package cache 提供基于 Redis 的缓存管理能力，用于缓存实体抽取结果。

# 概述

本包封装 go-redis 客户端，为检索层提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete 等基础操作，
    GetJSON/SetJSON 便捷序列化方法，以及定长摘要键 Key。
  - Config：缓存配置，包含地址、密码、键前缀、连接池大小、默认 TTL
    与健康检查间隔，可由 FromAppConfig 从应用配置组装。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 健康检查：后台定时 Ping 检测，Close 后退出。
  - 错误语义：ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
