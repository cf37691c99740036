// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package ingest 把清洗后的健康数据表写入图存储，并为测量节点构建向量索引。

# 数据集

每个用户一组 Datasets，键为 food_intake / water_intake / sleep_hours /
step_count，值为 Table（列名 + 行）。写入前整批校验：缺少 date 列或
专属数值列、日期无法归一化为 YYYY-MM-DD、数值无法解析，都会以
ErrIngestValidation 拒绝整批，存储不受影响。

# 写入

Writer.Ingest 在单个写事务中 MERGE 用户节点，然后为每一行创建一个
测量节点及其归属边。重复导入同一份数据会产生重复节点与边，
这是追加语义而不是去重。Writer.Delete 级联删除用户及其一跳可达节点，
对不存在的用户是空操作。

# 向量索引

Indexer.Build 创建 HealthData.embedding 上的向量索引（已存在时跳过），
然后分批为尚无向量的节点以 name 生成嵌入。
*/
package ingest
