// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 breaker 为外部协作服务（分割、3D 生成）提供熔断保护。

连续失败达到阈值后熔断器打开，调用直接返回 ErrCircuitOpen；
掩码协调器据此立即走本地回退掩码路径，而不是等待一个已知不可用的服务。
经过 ResetTimeout 后进入半开状态，放行有限次数的试探调用。

调用方主动取消（context.Canceled）以及 INVALID_REQUEST 等请求本身无效的
错误不计入失败次数。
*/
package breaker
