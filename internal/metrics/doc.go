// 版权所有 2024 HealthGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、图存储、混合检索、数据导入与缓存六个维度。

# 核心类型

  - Collector：指标收集器，按业务域分组持有 Counter 与 Histogram。

# 主要能力

  - 图存储指标：按语句名统计执行次数与耗时，outcome 区分
    ok / unavailable / error。Collector 实现 graphstore.Observer。
  - 检索指标：查询形态分布、实体抽取结果、证据完整度
    （empty / structured_only / vector_only / hybrid）。
  - 导入指标：按测量类型统计写入行数，按状态统计批次。
*/
package metrics
