package maskcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/types"
)

// =============================================================================
// 💾 Redis 掩码缓存
// =============================================================================

// Config Redis 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" env:"DB"`

	// Key 前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`

	// 掩码过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 健康检查间隔，0 表示不检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认 Redis 缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Prefix:              "sculptflow:mask:",
		TTL:                 30 * time.Minute,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// RedisCache 基于 Redis 的掩码缓存
type RedisCache struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// NewRedisCache 创建 Redis 掩码缓存并测试连接
func NewRedisCache(config Config, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Prefix == "" {
		config.Prefix = DefaultConfig().Prefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &RedisCache{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "maskcache")),
		stopCh: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}

	c.logger.Info("mask cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
	)
	return c, nil
}

// Get 实现 Cache.Get
func (c *RedisCache) Get(ctx context.Context, key string) (*types.Mask, bool, error) {
	if c.isClosed() {
		return nil, false, ErrClosed
	}

	data, err := c.redis.Get(ctx, c.config.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("从 Redis 获取失败: %w", err)
	}

	var m types.Mask
	if err := json.Unmarshal(data, &m); err != nil {
		// 损坏的条目按未命中处理
		c.logger.Warn("discarding corrupt mask cache entry", zap.String("key", key), zap.Error(err))
		_ = c.redis.Del(ctx, c.config.Prefix+key).Err()
		return nil, false, nil
	}
	return &m, true, nil
}

// Set 实现 Cache.Set
func (c *RedisCache) Set(ctx context.Context, key string, mask *types.Mask) error {
	if c.isClosed() {
		return ErrClosed
	}
	if mask == nil {
		return nil
	}

	data, err := json.Marshal(mask)
	if err != nil {
		return fmt.Errorf("序列化掩码失败: %w", err)
	}
	if err := c.redis.Set(ctx, c.config.Prefix+key, data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("存储到 Redis 失败: %w", err)
	}

	c.logger.Debug("mask cached",
		zap.String("key", key),
		zap.Int("data_size", len(mask.Data)),
	)
	return nil
}

// Ping 实现 Cache.Ping
func (c *RedisCache) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.redis.Ping(ctx).Err()
}

// Close 实现 Cache.Close
func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.logger.Info("closing mask cache")
	return c.redis.Close()
}

func (c *RedisCache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (c *RedisCache) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Error("mask cache health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
