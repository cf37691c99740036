// Copyright 2026 HealthGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package server 管理 HealthGraph 的 HTTP 端点生命周期：API 端点与
metrics 端点由同一个 Manager 启动，并在收到信号或端点异常退出时一起优雅关闭。

# 核心类型

  - Manager：持有多个命名端点，提供 Handle/HandleTLS/Start/Wait/Shutdown。
  - Config：读写超时、空闲超时、请求头上限与优雅关闭超时，
    可由 FromAppConfig 从 config.ServerConfig 构造。

# 使用示例

	m := server.NewManager(server.FromAppConfig(cfg.Server), logger)
	_ = m.Handle("api", ":8080", apiHandler, nil)
	_ = m.Handle("metrics", ":9091", promhttp.Handler(), nil)
	if err := m.Start(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.Wait(ctx)
*/
package server
