// 版权所有 2024 HealthGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层。

# 概述

检索引擎把 LLM 视为黑盒文本补全能力：实体抽取、追问改写与答案生成
都只依赖 [Provider] 接口。具体实现位于 providers/openai
（openai-go SDK，兼容 OpenAI 协议的服务）与 providers/anthropic
（anthropic-sdk-go），由 factory 按配置创建。

# 核心类型

  - [Provider]：Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：与服务商无关的请求与响应模型
  - [InstrumentedProvider]：日志与指标装饰器

# 错误

上游错误统一映射为 types.ErrLLMFailure（429 与 5xx 可重试），
超时映射为 types.ErrTimeout。
*/
package llm
