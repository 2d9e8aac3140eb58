// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭以及多服务器（API + metrics）协同运行。

# 核心类型

  - Manager：单个命名服务器，封装 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/ListenAddr 等生命周期方法。
  - Config：服务器配置，包含名称、监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。WriteTimeout 默认为 0，事件流长连接不受限制。
  - Group：一组共同进退的服务器。Run 阻塞到上下文结束
    （通常由 signal.NotifyContext 触发）或任一服务器异常退出，然后关闭全部。
*/
package server
