// Package tlsutil 提供集中式 TLS 与 HTTP 客户端配置，
// 为分割服务与 3D 生成服务的客户端提供安全加固的传输层（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
