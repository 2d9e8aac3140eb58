// Copyright (c) Sculptflow Authors.
// Licensed under the MIT License.

/*
包 maskcache 缓存分割服务返回的掩码，键为 源图像 + 完整点提示序列 的 SHA256。

相同图像上重放相同的点序列（例如撤销后重做、重新加载同一张图像）时，
掩码协调器直接命中缓存而无需再次调用分割服务。只缓存服务端掩码，
回退掩码本地合成，代价很低，不进入缓存。

提供两种实现：

  - Redis：基于 go-redis，多实例共享，带 TTL 与连接健康检查。
  - Memory：进程内 map + TTL + 容量上限，用于单机部署与测试。
*/
package maskcache
