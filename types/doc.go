// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 sculptflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workspace、llm/segment、
llm/threed、api 等上层模块提供统一的数据契约，避免循环依赖。

# 核心类型

  - Point / PointKind   — 点提示（正例 / 负例），源图像像素坐标
  - Mask / MaskSource   — 掩码（不透明载荷 + 编码标签 + 尺寸 + 分数 + 来源）
  - Asset / AssetFormat — 生成的 3D 资产（点云 ply / 网格 glb）
  - Transform           — 位置 / 旋转 / 统一缩放；TransformPatch 与
    TransformDelta 分别表示部分覆盖与交互增量
  - ObjectStatus        — 场景对象生命周期（Selecting / Generating / Ready / Error）
  - SourceImage         — 已加载的源图像及其像素尺寸
  - Error / ErrorCode   — 结构化错误体系
*/
package types
