// =============================================================================
// 📦 Sculptflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Segmentation: DefaultSegmentationConfig(),
		Generation:   DefaultGenerationConfig(),
		Mask:         DefaultMaskConfig(),
		Redis:        DefaultRedisConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		MaxImageBytes:   20 << 20,
	}
}

// DefaultSegmentationConfig 返回默认分割服务配置
func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		BaseURL:             "http://localhost:8001",
		Timeout:             30 * time.Second,
		MultiMask:           false,
		PrimeImage:          true,
		BreakerThreshold:    3,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultGenerationConfig 返回默认 3D 生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		BaseURL:       "http://localhost:8000",
		Timeout:       0,
		Seed:          42,
		Format:        "ply",
		MaxConcurrent: 2,
		Stagger:       500 * time.Millisecond,
	}
}

// DefaultMaskConfig 返回默认掩码配置
func DefaultMaskConfig() MaskConfig {
	return MaskConfig{
		FallbackRadius:  50,
		Cache:           "memory",
		CacheTTL:        30 * time.Minute,
		CacheMaxEntries: 256,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		Prefix:       "sculptflow:mask:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "sculptflow",
		SampleRate:   0.1,
	}
}
