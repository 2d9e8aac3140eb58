package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/api/handlers"
	"github.com/BaSui01/sculptflow/config"
	"github.com/BaSui01/sculptflow/internal/breaker"
	"github.com/BaSui01/sculptflow/internal/maskcache"
	"github.com/BaSui01/sculptflow/internal/metrics"
	"github.com/BaSui01/sculptflow/internal/server"
	"github.com/BaSui01/sculptflow/internal/telemetry"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
	"github.com/BaSui01/sculptflow/workspace"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Sculptflow 的主服务器：一个工作区会话加上它的 HTTP 表面
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	otel      *telemetry.Providers
	collector *metrics.Collector

	segmenter *segment.SAM3Provider
	generator *threed.SAM3DProvider
	breaker   breaker.Breaker
	cache     maskcache.Cache
	ws        *workspace.Workspace

	healthHandler *handlers.HealthHandler
	group         *server.Group

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 装配全部组件，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	// 1. 遥测与指标
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = otelProviders
	s.collector = metrics.NewCollector("sculptflow", logger)

	// 2. 协作服务
	format, err := types.ParseAssetFormat(cfg.Generation.Format)
	if err != nil {
		return nil, err
	}
	s.segmenter = segment.NewSAM3Provider(segment.SAM3Config{
		BaseURL:   cfg.Segmentation.BaseURL,
		Timeout:   cfg.Segmentation.Timeout,
		MultiMask: cfg.Segmentation.MultiMask,
	})
	s.generator = threed.NewSAM3DProvider(threed.SAM3DConfig{
		BaseURL: cfg.Generation.BaseURL,
		Seed:    cfg.Generation.Seed,
		Format:  format,
		Timeout: cfg.Generation.Timeout,
	})
	s.breaker = breaker.New(&breaker.Config{
		Name:         s.segmenter.Name(),
		Threshold:    cfg.Segmentation.BreakerThreshold,
		ResetTimeout: cfg.Segmentation.BreakerResetTimeout,
		OnStateChange: func(from, to breaker.State) {
			s.collector.RecordBreakerState(s.segmenter.Name(), int(to))
		},
	}, logger)
	s.collector.RecordBreakerState(s.segmenter.Name(), int(breaker.StateClosed))

	// 3. 掩码缓存
	s.cache = s.newMaskCache()

	// 4. 工作区
	wsCfg := workspace.DefaultConfig()
	wsCfg.FallbackRadius = cfg.Mask.FallbackRadius
	wsCfg.MultiMask = cfg.Segmentation.MultiMask
	wsCfg.PrimeImage = cfg.Segmentation.PrimeImage
	wsCfg.Seed = cfg.Generation.Seed
	wsCfg.Format = format
	wsCfg.MaxConcurrent = cfg.Generation.MaxConcurrent
	wsCfg.Stagger = cfg.Generation.Stagger

	opts := []workspace.Option{
		workspace.WithSegmenter(s.segmenter),
		workspace.WithGenerator(s.generator),
		workspace.WithBreaker(s.breaker),
		workspace.WithMetrics(s.collector),
	}
	if s.cache != nil {
		opts = append(opts, workspace.WithMaskCache(s.cache))
	}
	s.ws = workspace.New(wsCfg, logger, opts...)

	// 5. 健康检查
	s.healthHandler = handlers.NewHealthHandler(logger)
	s.healthHandler.RegisterCheck(handlers.NewGeneratorHealthCheck(s.generator))
	// 分割服务不可用时退回圆盘掩码，服务降级但仍可用
	s.healthHandler.RegisterOptionalCheck(handlers.NewSegmenterHealthCheck(s.segmenter))
	if s.cache != nil && cfg.Mask.Cache == "redis" {
		s.healthHandler.RegisterOptionalCheck(handlers.NewRedisHealthCheck("redis", s.cache.Ping))
	}

	// 6. HTTP 服务器
	managers := []*server.Manager{s.newHTTPManager()}
	if cfg.Server.MetricsPort > 0 {
		managers = append(managers, s.newMetricsManager())
	}
	s.group = server.NewGroup(logger, managers...)

	logger.Info("Server assembled",
		zap.String("segmentation", cfg.Segmentation.BaseURL),
		zap.String("generation", cfg.Generation.BaseURL),
		zap.String("mask_cache", cfg.Mask.Cache),
		zap.Int("max_concurrent", cfg.Generation.MaxConcurrent),
		zap.Duration("stagger", cfg.Generation.Stagger),
	)
	return s, nil
}

// newMaskCache 按配置创建掩码缓存；Redis 不可达时退回内存缓存
func (s *Server) newMaskCache() maskcache.Cache {
	mc := s.cfg.Mask
	switch mc.Cache {
	case "redis":
		rc := s.cfg.Redis
		cache, err := maskcache.NewRedisCache(maskcache.Config{
			Addr:                rc.Addr,
			Password:            rc.Password,
			DB:                  rc.DB,
			Prefix:              rc.Prefix,
			TTL:                 mc.CacheTTL,
			PoolSize:            rc.PoolSize,
			MinIdleConns:        rc.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
		}, s.logger)
		if err == nil {
			return cache
		}
		s.logger.Warn("redis mask cache unavailable, using in-memory cache",
			zap.String("addr", rc.Addr), zap.Error(err))
		return maskcache.NewMemoryCache(mc.CacheTTL, mc.CacheMaxEntries)
	case "memory":
		return maskcache.NewMemoryCache(mc.CacheTTL, mc.CacheMaxEntries)
	default:
		return nil
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewWorkspaceHandler(s.ws, s.cfg.Server.MaxImageBytes, s.logger).Register(mux)
	handlers.NewEventsHandler(s.ws, originHosts(s.cfg.Server.CORSAllowedOrigins), s.logger).Register(mux)
	return mux
}

// originHosts 把 CORS 来源转换为 WebSocket 的主机匹配模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

func (s *Server) newHTTPManager() *server.Manager {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	return server.NewManager(handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

func (s *Server) newMetricsManager() *server.Manager {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动服务器并阻塞到 ctx 结束，随后按依赖逆序释放资源
func (s *Server) Run(ctx context.Context) error {
	go s.warmUp(ctx)

	s.logger.Info("All servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	err := s.group.Run(ctx)
	s.shutdown()
	return err
}

// warmUp 启动时带退避地探测协作服务，只记录结果
func (s *Server) warmUp(ctx context.Context) {
	for _, res := range probeServices(ctx, s.segmenter, s.generator, newProbeRetryer(2, s.logger)) {
		if res.Err != nil {
			s.logger.Warn("collaborator not ready",
				zap.String("service", res.Service),
				zap.String("url", res.URL),
				zap.Error(res.Err))
			continue
		}
		s.logger.Info("collaborator ready",
			zap.String("service", res.Service),
			zap.String("detail", res.Detail),
			zap.Duration("latency", res.Latency))
	}
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 取消在途的掩码与生成调用并等待其结束
	s.ws.Close()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("mask cache close error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
