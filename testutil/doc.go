// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 HealthGraph 测试的共享工具和辅助函数。

# 概述

testutil 包为检索、导入与 HTTP 层的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertLinesContain / AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/graphmem: 内存版 graphstore.Store，按语句名解释语义，
    支持写事务回滚与错误注入
  - testutil/mocks: MockProvider（LLM Provider）与 HashEmbedder（确定性向量），
    均支持 Builder 模式与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	graph := graphmem.New()
	provider := mocks.NewMockProvider().WithResponse(`{"names":["Rice"]}`)
*/
package testutil
