// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 segment 提供点提示分割服务（SAM3 / SAM1 兼容服务器）的客户端抽象。

# 概述

本包只负责协作方边界：把源图像与正/负例点坐标发送给外部分割服务，
并把返回的候选掩码（Base64 PNG + 置信度）解码为字节载荷。
推理算法本身、回退掩码合成与过期结果判定均不在本包职责内，
由 workspace 包的掩码协调器负责。

# 核心接口

  - Provider       — 分割服务统一抽象（Name / Segment / Health）
  - ImagePreparer  — 可选能力：预先计算图像 embedding（/set_image）
  - TextSegmenter  — 可选能力：按文本提示分割并按置信度阈值过滤（/segment_with_text）
  - SegmentRequest / SegmentResponse / Candidate — 请求、响应与候选掩码
  - HealthStatus   — 健康探针结果（status、model_loaded、device）

# 主要能力

  - SAM3Provider：对接 /health、/set_image、/segment、/segment_with_text 四个 HTTP 端点。
  - 服务端返回 success=false 时转换为 *types.Error（SEGMENTATION_FAILED），
    调用方只需判断 error。
  - Candidate 选择：SegmentResponse.Best 返回最高分候选。
*/
package segment
