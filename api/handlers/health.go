package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []registeredCheck
	mu      sync.RWMutex
	timeout time.Duration
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type registeredCheck struct {
	check    HealthCheck
	optional bool
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // "pass", "fail"
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册必需的健康检查，失败时服务不就绪
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check})
}

// RegisterOptionalCheck 注册可降级的健康检查，失败时状态为 degraded 但仍就绪
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, optional: true})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格）
// @Summary Kubernetes 活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	// Liveness probe - 只检查进程是否运行
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求（就绪检查，探测协作服务）
// @Summary 准备情况检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	// 并发探测，单个慢服务不拖慢其他检查
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failed   bool
		degraded bool
	)
	for _, rc := range checks {
		wg.Add(1)
		go func(rc registeredCheck) {
			defer wg.Done()

			start := time.Now()
			err := rc.check.Check(ctx)
			latency := time.Since(start)

			result := CheckResult{
				Status:   "pass",
				Latency:  latency.String(),
				Optional: rc.optional,
			}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", rc.check.Name()),
					zap.Bool("optional", rc.optional),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[rc.check.Name()] = result
			if err != nil {
				if rc.optional {
					degraded = true
				} else {
					failed = true
				}
			}
		}(rc)
	}
	wg.Wait()

	switch {
	case failed:
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
	case degraded:
		status.Status = "degraded"
		WriteJSON(w, http.StatusOK, status)
	default:
		WriteJSON(w, http.StatusOK, status)
	}
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// ProbeHealthCheck 以函数实现的通用健康检查
type ProbeHealthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

// NewProbeHealthCheck 创建通用健康检查
func NewProbeHealthCheck(name string, probe func(ctx context.Context) error) *ProbeHealthCheck {
	return &ProbeHealthCheck{name: name, probe: probe}
}

func (c *ProbeHealthCheck) Name() string { return c.name }

func (c *ProbeHealthCheck) Check(ctx context.Context) error { return c.probe(ctx) }

// RedisHealthCheck Redis 健康检查
type RedisHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewRedisHealthCheck 创建 Redis 健康检查
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{name: name, ping: ping}
}

func (c *RedisHealthCheck) Name() string { return c.name }

func (c *RedisHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// NewSegmenterHealthCheck 探测分割服务：可达且模型已加载
func NewSegmenterHealthCheck(p segment.Provider) *ProbeHealthCheck {
	return NewProbeHealthCheck("segmentation:"+p.Name(), func(ctx context.Context) error {
		h, err := p.Health(ctx)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("empty health response")
		}
		if !h.Healthy() {
			return fmt.Errorf("status=%s model_loaded=%t", h.Status, h.ModelLoaded)
		}
		return nil
	})
}

// NewGeneratorHealthCheck 探测 3D 生成服务：可达且模型已加载
func NewGeneratorHealthCheck(p threed.ThreeDProvider) *ProbeHealthCheck {
	return NewProbeHealthCheck("generation:"+p.Name(), func(ctx context.Context) error {
		h, err := p.Health(ctx)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("empty health response")
		}
		if !h.Healthy() {
			return fmt.Errorf("status=%s model_loaded=%t", h.Status, h.ModelLoaded)
		}
		return nil
	})
}
