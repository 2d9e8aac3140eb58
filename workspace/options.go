package workspace

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/sculptflow/internal/breaker"
	"github.com/BaSui01/sculptflow/internal/maskcache"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// Config 工作区配置
type Config struct {
	// FallbackRadius 回退掩码圆盘半径（像素），正负点相同
	FallbackRadius float64
	// MultiMask 请求多个候选掩码，取最高分
	MultiMask bool
	// PrimeImage 加载图像时调用分割服务的 /set_image
	PrimeImage bool

	// Seed 生成随机种子
	Seed int
	// Format 生成输出格式
	Format types.AssetFormat
	// MaxConcurrent 同时进行中的生成调用上限
	MaxConcurrent int
	// Stagger GenerateAll 相邻两次外部调用的最小间隔，0 表示不错峰
	Stagger time.Duration

	// Palette 对象颜色轮转表，空则使用 DefaultPalette
	Palette []string
}

// DefaultConfig 返回默认工作区配置
func DefaultConfig() Config {
	return Config{
		FallbackRadius: 50,
		PrimeImage:     true,
		Seed:           42,
		Format:         types.FormatPointCloud,
		MaxConcurrent:  2,
		Stagger:        500 * time.Millisecond,
	}
}

// Option 注入协作方与基础设施
type Option func(*Workspace)

// WithSegmenter 设置分割服务；未设置时所有掩码走本地回退
func WithSegmenter(p segment.Provider) Option {
	return func(w *Workspace) { w.segmenter = p }
}

// WithGenerator 设置 3D 生成服务；未设置时生成立即失败
func WithGenerator(p threed.ThreeDProvider) Option {
	return func(w *Workspace) { w.generator = p }
}

// WithMaskCache 设置掩码缓存
func WithMaskCache(c maskcache.Cache) Option {
	return func(w *Workspace) { w.cache = c }
}

// WithBreaker 设置分割服务熔断器
func WithBreaker(b breaker.Breaker) Option {
	return func(w *Workspace) { w.breaker = b }
}

// WithMetrics 设置指标记录器
func WithMetrics(m Metrics) Option {
	return func(w *Workspace) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithIDGenerator 替换对象 ID 生成函数
func WithIDGenerator(fn func() string) Option {
	return func(w *Workspace) {
		if fn != nil {
			w.newID = fn
		}
	}
}

func defaultID() string { return uuid.NewString() }

// Metrics 工作区指标记录接口，由 internal/metrics.Collector 实现
type Metrics interface {
	RecordMaskResolution(outcome string)
	RecordSegmentation(provider string, duration time.Duration)
	GenerationStarted()
	RecordGeneration(provider, result string, duration time.Duration)
	RecordStatusTransition(from, to string)
	SetObjectCounts(counts map[string]int)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMaskResolution(string) {}
func (noopMetrics) RecordSegmentation(string, time.Duration) {}
func (noopMetrics) GenerationStarted() {}
func (noopMetrics) RecordGeneration(string, string, time.Duration) {}
func (noopMetrics) RecordStatusTransition(string, string) {}
func (noopMetrics) SetObjectCounts(map[string]int) {}
func (noopMetrics) RecordCacheHit(string) {}
func (noopMetrics) RecordCacheMiss(string) {}

// 掩码结局
const (
	outcomeService  = "service"
	outcomeCache    = "cache"
	outcomeFallback = "fallback"
	outcomeStale    = "stale"
	outcomeError    = "error"
)

// 生成结果
const (
	resultReady     = "ready"
	resultError     = "error"
	resultDiscarded = "discarded"
)
