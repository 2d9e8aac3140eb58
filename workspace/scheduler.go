package workspace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/internal/telemetry"
	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// generationJob 一次生成调用。请求在对象进入 Generating 时捕获，之后不再变化。
type generationJob struct {
	epoch uint64
	id    string
	token uint64
	req   *threed.GenerateRequest
}

// GenerateOne 为单个对象发起生成。对象须处于 Selecting，或处于 Error（显式重试）；
// 其他状态下不做任何事。对象同步进入 Generating，外部调用在后台进行，
// 仅受并发上限约束。
func (w *Workspace) GenerateOne(id string) bool {
	w.mu.Lock()
	obj, ok := w.index[id]
	if !ok || !obj.Status.CanGenerate() {
		w.mu.Unlock()
		return false
	}
	job := w.beginGenerationLocked(obj)
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			return
		}
		defer w.sem.Release(1)
		if !w.jobLive(job, "slot") {
			return
		}
		w.runGeneration(job)
	}()
	return true
}

// GenerateAll 把所有 Selecting 对象同步迁入 Generating，并按策略派发外部调用：
// 相邻两次发起至少间隔 Stagger，同时在途不超过 MaxConcurrent。
// 返回被迁移的对象 ID（插入顺序）。完成顺序不保证。
func (w *Workspace) GenerateAll() []string {
	w.mu.Lock()
	var jobs []*generationJob
	for _, obj := range w.objects {
		if obj.Status == types.StatusSelecting {
			jobs = append(jobs, w.beginGenerationLocked(obj))
		}
	}
	if len(jobs) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go w.dispatch(jobs)

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.id
	}
	w.logger.Info("batch generation scheduled",
		zap.Int("objects", len(jobs)),
		zap.Int("max_concurrent", w.config.MaxConcurrent),
		zap.Duration("stagger", w.config.Stagger))
	return ids
}

// dispatch 逐个发起批量生成：先占并发槽位，再等错峰令牌。
// 排队期间对象被删除、会话被替换或已重新生成的作业直接跳过并归还槽位。
func (w *Workspace) dispatch(jobs []*generationJob) {
	defer w.wg.Done()

	for i, job := range jobs {
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			w.abandon(jobs[i:], err)
			return
		}
		if !w.jobLive(job, "slot") {
			w.sem.Release(1)
			continue
		}
		if err := w.limiter.Wait(w.ctx); err != nil {
			w.sem.Release(1)
			w.abandon(jobs[i:], err)
			return
		}
		if !w.jobLive(job, "stagger") {
			w.sem.Release(1)
			continue
		}
		w.wg.Add(1)
		go func(job *generationJob) {
			defer w.wg.Done()
			defer w.sem.Release(1)
			w.runGeneration(job)
		}(job)
	}
}

func (w *Workspace) abandon(jobs []*generationJob, err error) {
	w.logger.Debug("batch generation abandoned",
		zap.Int("remaining", len(jobs)),
		zap.Error(err))
}

// jobLive 报告排队中的作业是否仍对应当前对象的当前一轮生成
func (w *Workspace) jobLive(job *generationJob, stage string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.currentJobLocked(job); ok {
		return true
	}
	w.logger.Debug("queued generation skipped",
		zap.String("object_id", job.id),
		zap.String("stage", stage))
	return false
}

func (w *Workspace) currentJobLocked(job *generationJob) (*SceneObject, bool) {
	obj, ok := w.index[job.id]
	if job.epoch != w.epoch || !ok || obj.genToken != job.token || obj.Status != types.StatusGenerating {
		return obj, false
	}
	return obj, true
}

// beginGenerationLocked 迁入 Generating 并捕获请求
func (w *Workspace) beginGenerationLocked(obj *SceneObject) *generationJob {
	obj.genToken++
	obj.Asset = nil
	obj.Error = ""

	req := &threed.GenerateRequest{
		Seed:   w.config.Seed,
		Format: w.config.Format,
	}
	if w.image != nil {
		req.Image = w.image.Data
	}
	if obj.Mask != nil {
		req.Mask = obj.Mask.Data
	}
	w.setStatusLocked(obj, types.StatusGenerating)

	return &generationJob{
		epoch: w.epoch,
		id:    obj.ID,
		token: obj.genToken,
		req:   req,
	}
}

func (w *Workspace) runGeneration(job *generationJob) {
	ctx, span := telemetry.StartSpan(w.ctx, "workspace.generate",
		attribute.String("object.id", job.id),
		attribute.String("format", string(job.req.Format)),
		attribute.Int("seed", job.req.Seed))

	provider := "none"
	if w.generator != nil {
		provider = w.generator.Name()
	}

	start := time.Now()
	w.metrics.GenerationStarted()
	asset, err := w.generate(ctx, job)
	telemetry.EndSpan(span, err)

	result := w.settleGeneration(job, asset, err)
	w.metrics.RecordGeneration(provider, result, time.Since(start))
}

// generate 调用生成服务，不做自动重试
func (w *Workspace) generate(ctx context.Context, job *generationJob) (*types.Asset, error) {
	if len(job.req.Mask) == 0 {
		return nil, types.NewError(types.ErrNoMask, "object has no mask")
	}
	if len(job.req.Image) == 0 {
		return nil, types.NewError(types.ErrNoImage, "no image loaded")
	}
	if w.generator == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no generation service configured")
	}

	resp, err := w.generator.Generate(ctx, job.req)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Asset == nil || len(resp.Asset.Data) == 0 {
		return nil, types.NewError(types.ErrGenerationFailed, "generation returned no asset").
			WithProvider(w.generator.Name())
	}
	return resp.Asset, nil
}

// settleGeneration 落定生成结果。对象已被删除、会话已替换或已开始新一轮生成时，结果被丢弃。
func (w *Workspace) settleGeneration(job *generationJob, asset *types.Asset, err error) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.currentJobLocked(job)
	if !ok {
		w.logger.Debug("generation result discarded",
			zap.String("object_id", job.id),
			zap.Bool("object_exists", obj != nil))
		return resultDiscarded
	}

	if err != nil {
		obj.Error = err.Error()
		w.setStatusLocked(obj, types.StatusError)
		w.logger.Warn("generation failed",
			zap.String("object_id", job.id),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return resultError
	}

	obj.Asset = asset
	w.setStatusLocked(obj, types.StatusReady)
	w.logger.Info("generation completed",
		zap.String("object_id", job.id),
		zap.String("format", string(asset.Format)),
		zap.Int("size", asset.Size))
	return resultReady
}
