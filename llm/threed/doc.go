// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 threed 提供基于 图像 + 掩码 的 3D 资产生成客户端（SAM3D 兼容服务）。

# 概述

本包只负责协作方边界：把源图像与某个对象的已提交掩码发送给生成服务，
并把返回的模型数据（Base64）解码为 types.Asset。调度、并发上限、错峰
与结果丢弃均由 workspace 包的生成调度器负责。

# 核心接口

  - ThreeDProvider   — 3D 生成的统一抽象，包含 Name()、Generate() 与 Health()。
  - GenerateRequest  — 生成请求：image、mask、seed、format（ply / glb）。
  - GenerateResponse — 生成响应：解码后的资产字节与格式。
  - HealthStatus     — 健康探针（status、model_loaded、gpu、cuda_available）。

# 主要能力

  - SAM3DProvider：对接 /generate 与 /health 两个 HTTP 端点。
  - success=false 与非 2xx 响应统一转换为 *types.Error（GENERATION_FAILED /
    UPSTREAM_ERROR），调用方只需判断 error。
  - 输出格式：点云 ply（默认）或网格 glb。
*/
package threed
