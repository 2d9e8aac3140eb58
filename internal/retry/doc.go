// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

// 包 retry 为协作方健康探测与启动预热提供指数退避重试。默认只重试
// types.Error 中 Retryable=true 的错误（传输失败、5xx），业务失败直接返回。
// 生成调用不经过本包：失败直接落为对象的 Error 状态，由用户显式重试。
package retry
