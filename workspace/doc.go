// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 workspace 实现交互式工作区编排引擎：点提示累加、掩码请求协调
（含回退掩码合成）、场景对象生命周期、批量生成调度以及
对象记录与 3D 变换之间的同步。

# 概述

Workspace 是一个编辑会话的唯一拥有者。所有状态变更在同一把互斥锁下
原子完成；分割与 3D 生成调用在后台 goroutine 中等待外部服务，
结果经同一把锁落回，并受过期判定约束。

# 组件

  - 点提示累加器 — AddPoint / RemoveLastPoint / ClearPoints
  - 掩码协调器   — 每个累加器最多一个在途请求；结果仅在点序列未变时生效；
    分割失败时按点序合成圆盘回退掩码（FallbackMask）
  - 场景对象注册表 — Commit / Remove / SetVisible / Select / UpdateMask
  - 生成调度器   — GenerateOne / GenerateAll，错峰间隔 + 并发上限
  - 变换同步器   — UpdateTransform / ApplyDelta / Pose / Gizmo，写穿到对象记录
  - 会话控制     — LoadImage / Reset / ResetScene / SetError / Snapshot

# 状态机

	Selecting ──生成──▶ Generating ──成功──▶ Ready
	                      │  ▲
	                  失败 │  │ GenerateOne（重试）
	                      ▼  │
	                      Error

无效操作（无点提交、未知 ID、错误状态下生成）静默忽略，API 以 false 报告。

# 通知

状态变更通过 EventBus 以有序事件发布，事件只携带标识与摘要，
订阅方通过 Snapshot 读取完整读模型。
*/
package workspace
