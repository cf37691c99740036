// Package tlsutil 集中提供加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 用于 HTTPS 服务端以及 LLM / 向量化 SDK 的出站 HTTP 客户端。
package tlsutil
