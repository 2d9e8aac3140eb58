// Package config 提供 Sculptflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（SCULPTFLOW_<SECTION>_<KEY>）
// 的顺序合并，最后运行验证器。
package config
