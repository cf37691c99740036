// Package telemetry 初始化 OpenTelemetry SDK：OTLP gRPC 导出 trace 与 metric，
// 并注册全局 Provider 与 W3C 传播器。检索与存储层通过 otel.Tracer 取用。
// 未启用时保持 noop 实现，不连接任何外部服务。
package telemetry
