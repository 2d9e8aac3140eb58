// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、掩码解析、
3D 生成、场景对象状态、缓存与熔断器六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。Collector 满足
workspace.Metrics 接口，由 cmd/sculptflow 注入工作区。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 掩码指标：按结局（service / cache / fallback / stale / error）计数，
    分割服务调用耗时。
  - 生成指标：进行中的任务数、按结果（ready / error / discarded）计数、耗时。
  - 场景对象指标：状态转换计数、按状态分组的对象数量。
  - 缓存与熔断器：掩码缓存命中/未命中、熔断器状态。
*/
package metrics
