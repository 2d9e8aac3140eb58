package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/internal/retry"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// =============================================================================
// 🩺 协作服务探测
// =============================================================================

// segmentHealther 与 generateHealther 只要求 Health，便于测试替换
type segmentHealther interface {
	Name() string
	BaseURL() string
	Health(ctx context.Context) (*segment.HealthStatus, error)
}

type generateHealther interface {
	Name() string
	BaseURL() string
	Health(ctx context.Context) (*threed.HealthStatus, error)
}

// probeResult 单个服务的探测结果
type probeResult struct {
	Service string
	URL     string
	Detail  string
	Latency time.Duration
	Err     error
}

// newProbeRetryer 探测用的退避重试器；模型加载中也视为可重试
func newProbeRetryer(maxRetries int, logger *zap.Logger) retry.Retryer {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = maxRetries
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return retry.NewBackoffRetryer(policy, logger)
}

// probeServices 依次探测分割与生成服务
func probeServices(ctx context.Context, seg segmentHealther, gen generateHealther, r retry.Retryer) []probeResult {
	results := make([]probeResult, 0, 2)

	start := time.Now()
	sh, err := retry.DoTyped(r, ctx, func(ctx context.Context) (*segment.HealthStatus, error) {
		h, err := seg.Health(ctx)
		if err != nil {
			return nil, err
		}
		if !h.Healthy() {
			return nil, types.NewError(types.ErrServiceUnavailable,
				fmt.Sprintf("status=%s model_loaded=%t", h.Status, h.ModelLoaded)).WithProvider(seg.Name())
		}
		return h, nil
	})
	res := probeResult{Service: seg.Name(), URL: seg.BaseURL(), Latency: time.Since(start), Err: err}
	if sh != nil {
		res.Detail = fmt.Sprintf("device=%s", sh.Device)
		if sh.Version != "" {
			res.Detail += " version=" + sh.Version
		}
	}
	results = append(results, res)

	start = time.Now()
	gh, err := retry.DoTyped(r, ctx, func(ctx context.Context) (*threed.HealthStatus, error) {
		h, err := gen.Health(ctx)
		if err != nil {
			return nil, err
		}
		if !h.Healthy() {
			return nil, types.NewError(types.ErrServiceUnavailable,
				fmt.Sprintf("status=%s model_loaded=%t", h.Status, h.ModelLoaded)).WithProvider(gen.Name())
		}
		return h, nil
	})
	res = probeResult{Service: gen.Name(), URL: gen.BaseURL(), Latency: time.Since(start), Err: err}
	if gh != nil {
		res.Detail = fmt.Sprintf("gpu=%s cuda=%t", gh.GPU, gh.CUDAAvailable)
	}
	results = append(results, res)

	return results
}

// writeProbeTable 以表格形式输出探测结果
func writeProbeTable(w io.Writer, results []probeResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tURL\tSTATUS\tLATENCY\tDETAIL")
	for _, res := range results {
		status, detail := "ok", res.Detail
		if res.Err != nil {
			status, detail = "unavailable", res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			res.Service, res.URL, status, res.Latency.Round(time.Millisecond), detail)
	}
	_ = tw.Flush()
}

// =============================================================================
// 🖥️ probe 命令
// =============================================================================

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	retries := fs.Int("retries", 2, "Retries per service on failure")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	seg := segment.NewSAM3Provider(segment.SAM3Config{
		BaseURL: cfg.Segmentation.BaseURL,
		Timeout: cfg.Segmentation.Timeout,
	})
	gen := threed.NewSAM3DProvider(threed.SAM3DConfig{
		BaseURL: cfg.Generation.BaseURL,
		Timeout: cfg.Segmentation.Timeout,
	})

	ctx, stop := signalContext()
	defer stop()

	results := probeServices(ctx, seg, gen, newProbeRetryer(*retries, logger))
	writeProbeTable(os.Stdout, results)

	var failed []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Service)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unavailable services: %v", failed)
	}
	return nil
}
