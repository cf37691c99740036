// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package handlers 提供 HealthGraph HTTP API 的请求处理器实现。

# 核心类型

  - RetrievalHandler — POST /api/v1/evidence 与 /api/v1/answer，
    带 session_id 时加载会话历史用于追问改写，回答后追加到会话
  - UserHandler      — 写入用户健康数据、删除用户
  - SessionHandler   — 聊天会话的创建、列表、消息与删除
  - HealthHandler    — /health 存活与 /ready 就绪检查
  - Routes           — 以 Go 1.22 路由模式统一注册以上处理器

# 响应格式

所有响应使用 Response 包装（success + data/error + timestamp + request_id）。
*types.Error 按其 HTTPStatus（或错误码映射）输出，其余错误统一为 500，
不暴露内部细节。
*/
package handlers
