package workspace

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/internal/breaker"
	"github.com/BaSui01/sculptflow/internal/maskcache"
	"github.com/BaSui01/sculptflow/internal/telemetry"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/types"
)

// maskRequest 一次掩码请求。image 与 points 在发出后不再变化。
type maskRequest struct {
	epoch  uint64
	token  uint64
	edit   uint64
	image  *types.SourceImage
	points []types.Point
}

// maskCoordinator 累加器的在途令牌。同一时刻最多一个请求在途；
// 在途期间的新触发只记为 rerun，待在途请求落定后再按当前点序列补发。
// edits 在点序列每次变动时递增。
type maskCoordinator struct {
	token    uint64
	edits    uint64
	inFlight bool
	req      *maskRequest
	rerun    bool
}

// Segmenting 报告是否有针对当前点序列的请求在途
func (w *Workspace) Segmenting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentingLocked()
}

func (w *Workspace) segmentingLocked() bool {
	m := w.masks
	return m.inFlight &&
		m.req.epoch == w.epoch &&
		len(w.pending.points) > 0 &&
		w.matchesPendingLocked(m.req)
}

// matchesPendingLocked 报告请求是否对应当前点序列。请求发出后点序列
// 未被编辑即视为一致，不依赖坐标的相等比较。
func (w *Workspace) matchesPendingLocked(req *maskRequest) bool {
	return req.edit == w.masks.edits || types.EqualPoints(req.points, w.pending.points)
}

// pointsEditedLocked 记录一次点序列变动
func (w *Workspace) pointsEditedLocked() {
	w.masks.edits++
	w.emitLocked(Event{Type: EventPointsChanged})
}

func (w *Workspace) emitSegmentingLocked(before bool) {
	if now := w.segmentingLocked(); now != before {
		w.emitLocked(Event{Type: EventSegmentingChanged, Message: boolString(now)})
	}
}

// requestMaskLocked 按当前完整点序列请求掩码
func (w *Workspace) requestMaskLocked() {
	if len(w.pending.points) == 0 || w.image == nil {
		return
	}
	if w.masks.inFlight {
		w.masks.rerun = true
		w.logger.Debug("mask request superseded",
			zap.Uint64("in_flight", w.masks.token),
			zap.Int("points", len(w.pending.points)))
		return
	}
	w.launchMaskLocked()
}

func (w *Workspace) launchMaskLocked() {
	w.masks.token++
	req := &maskRequest{
		epoch:  w.epoch,
		token:  w.masks.token,
		edit:   w.masks.edits,
		image:  w.image,
		points: clonePoints(w.pending.points),
	}
	w.masks.inFlight = true
	w.masks.req = req
	w.masks.rerun = false

	w.wg.Add(1)
	go w.resolveMask(req)
}

func (w *Workspace) resolveMask(req *maskRequest) {
	defer w.wg.Done()

	ctx, span := telemetry.StartSpan(w.ctx, "workspace.resolve_mask",
		attribute.Int("points", len(req.points)),
		attribute.Int64("token", int64(req.token)))
	mask, outcome, err := w.fetchMask(ctx, req)
	telemetry.EndSpan(span, err)

	w.settleMask(req, mask, outcome, err)
}

// settleMask 落定请求结果。结果只在请求点序列等于当前点序列时生效；
// 若点序列在途期间被编辑过，则按当前状态补发一次请求。补发的请求
// 携带当前 edits，落定时必然命中，不会连续补发。
func (w *Workspace) settleMask(req *maskRequest, mask *types.Mask, outcome string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if req.epoch != w.epoch {
		w.metrics.RecordMaskResolution(outcomeStale)
		w.logger.Debug("mask result discarded: session replaced", zap.Uint64("token", req.token))
		return
	}

	before := w.segmentingLocked()
	if w.masks.token == req.token {
		w.masks.inFlight = false
	}

	current := w.matchesPendingLocked(req)
	switch {
	case !current:
		w.metrics.RecordMaskResolution(outcomeStale)
		w.logger.Debug("stale mask result discarded",
			zap.Uint64("token", req.token),
			zap.Int("request_points", len(req.points)),
			zap.Int("current_points", len(w.pending.points)))
	case err != nil:
		w.metrics.RecordMaskResolution(outcomeError)
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("mask synthesis failed", zap.Error(err))
			w.setErrorLocked("mask synthesis failed: " + err.Error())
		}
	default:
		w.metrics.RecordMaskResolution(outcome)
		w.setPendingMaskLocked(mask)
	}

	if !w.masks.inFlight && !current && len(w.pending.points) > 0 {
		w.launchMaskLocked()
	} else {
		w.masks.rerun = false
	}
	w.emitSegmentingLocked(before)
}

// fetchMask 依次尝试缓存、分割服务、本地回退
func (w *Workspace) fetchMask(ctx context.Context, req *maskRequest) (*types.Mask, string, error) {
	var key string
	if w.cache != nil {
		key = maskcache.Key(req.image.Data, req.points, w.config.MultiMask)
		cached, ok, err := w.cache.Get(ctx, key)
		switch {
		case err != nil:
			w.logger.Warn("mask cache read failed", zap.Error(err))
		case ok:
			w.metrics.RecordCacheHit("mask")
			return cached, outcomeCache, nil
		default:
			w.metrics.RecordCacheMiss("mask")
		}
	}

	mask, err := w.segment(ctx, req)
	if err == nil {
		if key != "" {
			if err := w.cache.Set(ctx, key, mask); err != nil {
				w.logger.Warn("mask cache write failed", zap.Error(err))
			}
		}
		return mask, outcomeService, nil
	}
	if ctx.Err() != nil {
		return nil, outcomeError, ctx.Err()
	}

	w.logger.Warn("segmentation unavailable, using fallback mask",
		zap.Int("points", len(req.points)),
		zap.Bool("breaker_open", breaker.IsOpen(err)),
		zap.Error(err))
	fb, ferr := SynthesizeFallback(req.image.Width, req.image.Height, req.points, w.config.FallbackRadius)
	if ferr != nil {
		return nil, outcomeError, ferr
	}
	return fb, outcomeFallback, nil
}

// segment 通过熔断器调用分割服务并取最高分掩码
func (w *Workspace) segment(ctx context.Context, req *maskRequest) (*types.Mask, error) {
	if w.segmenter == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no segmentation service configured")
	}

	positive, negative := types.SplitPoints(req.points)
	sreq := &segment.SegmentRequest{
		Image:     req.image.Data,
		Positive:  positive,
		Negative:  negative,
		MultiMask: w.config.MultiMask,
	}
	call := func(ctx context.Context) (*segment.SegmentResponse, error) {
		return w.segmenter.Segment(ctx, sreq)
	}

	start := time.Now()
	var (
		resp *segment.SegmentResponse
		err  error
	)
	if w.breaker != nil {
		resp, err = breaker.Do(w.breaker, ctx, call)
	} else {
		resp, err = call(ctx)
	}
	if !breaker.IsOpen(err) {
		w.metrics.RecordSegmentation(w.segmenter.Name(), time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	best, ok := resp.Best()
	if !ok || len(best.Data) == 0 {
		return nil, types.NewError(types.ErrSegmentationFailed, "segmentation returned no mask").
			WithProvider(w.segmenter.Name())
	}
	return &types.Mask{
		Data:     best.Data,
		Encoding: types.MaskEncodingPNG,
		Width:    req.image.Width,
		Height:   req.image.Height,
		Score:    best.Score,
		Source:   types.MaskFromService,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
