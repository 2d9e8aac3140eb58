// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Sculptflow HTTP API 的请求处理器实现。

# 概述

handlers 包把 workspace 包的会话操作映射为 REST 端点，并通过 WebSocket
推送状态变更通知，同时提供健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，使用 Go 1.22 路由模式注册。

# 核心类型

  - WorkspaceHandler — 图像加载、点提示、对象、变换与生成端点
  - EventsHandler    — /api/v1/events WebSocket 事件流（先快照，后事件）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，支持 Hijack
  - HealthCheck      — 可插拔健康检查接口（分割服务、生成服务、Redis）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 图像上传：multipart 字段 image 或 image/* 原始请求体
  - 二进制下载：源图像、掩码 PNG、3D 资产
  - 就绪检查：必需检查失败为 unhealthy，可选检查失败为 degraded
*/
package handlers
