package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// =============================================================================
// 📦 批量生成
// =============================================================================

const maskSuffix = "_mask.png"

// batchJob 一对 图像 + 掩码
type batchJob struct {
	Name      string
	ImagePath string
	MaskPath  string
}

// batchOptions 批量生成参数
type batchOptions struct {
	OutDir        string
	Format        types.AssetFormat
	Seed          int
	MaxConcurrent int
	Stagger       time.Duration
}

// batchResult 单项结果
type batchResult struct {
	Name     string
	Output   string
	Size     int
	Duration time.Duration
	Err      error
}

// scanBatchDir 查找 <name>.<png|jpg|jpeg> 与 <name>_mask.png 成对的文件，按名称排序
func scanBatchDir(dir string) ([]batchJob, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	images := make(map[string]string)
	masks := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, maskSuffix) {
			masks[name[:len(name)-len(maskSuffix)]] = filepath.Join(dir, name)
			continue
		}
		switch filepath.Ext(lower) {
		case ".png", ".jpg", ".jpeg":
			images[strings.TrimSuffix(name, filepath.Ext(name))] = filepath.Join(dir, name)
		}
	}

	var jobs []batchJob
	var unmatched []string
	for stem, img := range images {
		mask, ok := masks[stem]
		if !ok {
			unmatched = append(unmatched, filepath.Base(img))
			continue
		}
		jobs = append(jobs, batchJob{Name: stem, ImagePath: img, MaskPath: mask})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	sort.Strings(unmatched)
	return jobs, unmatched, nil
}

// runBatchJobs 并发生成；单项失败不影响其它项
func runBatchJobs(ctx context.Context, gen threed.ThreeDProvider, jobs []batchJob, opts batchOptions, logger *zap.Logger) []batchResult {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	limit := rate.Inf
	if opts.Stagger > 0 {
		limit = rate.Every(opts.Stagger)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([]batchResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrent)

	for i, job := range jobs {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				results[i] = batchResult{Name: job.Name, Err: err}
				return nil
			}
			results[i] = generateOne(gctx, gen, job, opts, logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func generateOne(ctx context.Context, gen threed.ThreeDProvider, job batchJob, opts batchOptions, logger *zap.Logger) (res batchResult) {
	res.Name = job.Name
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	image, err := os.ReadFile(job.ImagePath)
	if err != nil {
		res.Err = err
		return res
	}
	mask, err := os.ReadFile(job.MaskPath)
	if err != nil {
		res.Err = err
		return res
	}

	logger.Info("generating", zap.String("name", job.Name), zap.String("format", string(opts.Format)))
	resp, err := gen.Generate(ctx, &threed.GenerateRequest{
		Image:  image,
		Mask:   mask,
		Seed:   opts.Seed,
		Format: opts.Format,
	})
	if err != nil {
		logger.Warn("generation failed", zap.String("name", job.Name), zap.Error(err))
		res.Err = err
		return res
	}

	out := filepath.Join(opts.OutDir, job.Name+"."+string(resp.Asset.Format))
	if err := os.WriteFile(out, resp.Asset.Data, 0o644); err != nil {
		res.Err = err
		return res
	}
	res.Output = out
	res.Size = resp.Asset.Size
	return res
}

func writeBatchSummary(w io.Writer, results []batchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tDURATION\tOUTPUT")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\tfailed\t%s\t%s\n", res.Name, res.Duration.Round(time.Millisecond), res.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\tready\t%s\t%s (%d bytes)\n", res.Name, res.Duration.Round(time.Millisecond), res.Output, res.Size)
	}
	_ = tw.Flush()
}

// =============================================================================
// 🖥️ batch 命令
// =============================================================================

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "", "Input directory")
	outDir := fs.String("out", "", "Output directory (default: input directory)")
	format := fs.String("format", "", "ply or glb (default: generation.format)")
	seed := fs.Int("seed", -1, "Seed override (default: generation.seed)")
	_ = fs.Parse(args)

	if *dir == "" {
		return fmt.Errorf("--dir is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	opts := batchOptions{
		OutDir:        *outDir,
		Seed:          cfg.Generation.Seed,
		MaxConcurrent: cfg.Generation.MaxConcurrent,
		Stagger:       cfg.Generation.Stagger,
	}
	if opts.OutDir == "" {
		opts.OutDir = *dir
	}
	if *seed >= 0 {
		opts.Seed = *seed
	}
	formatName := cfg.Generation.Format
	if *format != "" {
		formatName = *format
	}
	if opts.Format, err = types.ParseAssetFormat(formatName); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs, unmatched, err := scanBatchDir(*dir)
	if err != nil {
		return err
	}
	for _, name := range unmatched {
		logger.Warn("image has no mask, skipped", zap.String("image", name))
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no <name>.<png|jpg> + <name>%s pairs in %s", maskSuffix, *dir)
	}

	gen := threed.NewSAM3DProvider(threed.SAM3DConfig{
		BaseURL: cfg.Generation.BaseURL,
		Seed:    opts.Seed,
		Format:  opts.Format,
		Timeout: cfg.Generation.Timeout,
	})

	ctx, stop := signalContext()
	defer stop()

	results := runBatchJobs(ctx, gen, jobs, opts, logger)
	writeBatchSummary(os.Stdout, results)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d generations failed", failed, len(results))
	}
	return nil
}
