// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 Sculptflow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor /
    WaitForChannel，支持超时轮询等待条件满足

# 子包

  - testutil/mocks: 分割与 3D 生成协作方的 Mock 实现，支持固定响应、
    错误注入与“闸门”模式（逐个放行调用，用于乱序到达测试）
  - testutil/fixtures: 测试图像与掩码解码工具

# 使用示例

	seg := mocks.NewMockSegmenter().WithGate()
	ws := workspace.New(cfg, zap.NewNop(), workspace.WithSegmenter(seg))
	call := seg.NextCall(t, time.Second)
	call.Succeed(0.9)
*/
package testutil
