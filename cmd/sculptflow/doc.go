// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 Sculptflow 服务端程序入口。

# 概述

cmd/sculptflow 是 Sculptflow 的可执行入口，装配分割服务（SAM3）、
3D 生成服务（SAM3D）、掩码缓存、熔断器与工作区会话，并通过 HTTP API、
WebSocket 事件流与 Prometheus 指标对外提供服务。

# 核心类型

  - Server     — 主服务器，管理 API 与 Metrics 双端口及优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、probe（探测协作服务）、batch（批量生成）、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    Metrics、RequestLogger、CORS、RateLimiter（基于 IP）
  - 启动预热：带退避重试地探测协作服务，只记录结果
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭工作区 → 关闭缓存 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
