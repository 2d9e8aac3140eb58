package workspace

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // 注册解码器，用于读取图像尺寸
	_ "image/png"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/sculptflow/internal/breaker"
	"github.com/BaSui01/sculptflow/internal/maskcache"
	"github.com/BaSui01/sculptflow/llm/segment"
	"github.com/BaSui01/sculptflow/llm/threed"
	"github.com/BaSui01/sculptflow/types"
)

// Mode 展示模式
type Mode string

const (
	// ModeUpload 等待上传图像
	ModeUpload Mode = "upload"
	// ModeWorkspace 已加载图像，可以选取对象
	ModeWorkspace Mode = "workspace"
)

// Workspace 一个编辑会话的全部状态及其操作。所有状态变更在 mu 下进行，
// 异步的掩码与生成调用在锁外等待外部服务，结果再经同一把锁落回。
type Workspace struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger

	segmenter segment.Provider
	generator threed.ThreeDProvider
	cache     maskcache.Cache
	breaker   breaker.Breaker
	metrics   Metrics
	events    *EventBus
	newID     func() string

	// 生成调度策略
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	// 会话状态
	mode     Mode
	image    *types.SourceImage
	epoch    uint64
	pending  pendingSelection
	objects  []*SceneObject
	index    map[string]*SceneObject
	selected string
	created  int
	errMsg   string

	// 掩码请求协调（每个 epoch 一个累加器）
	masks maskCoordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建工作区，初始为上传模式
func New(config Config, logger *zap.Logger, opts ...Option) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.FallbackRadius <= 0 {
		config.FallbackRadius = defaults.FallbackRadius
	}
	if config.Format == "" {
		config.Format = defaults.Format
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.Stagger < 0 {
		config.Stagger = 0
	}
	if len(config.Palette) == 0 {
		config.Palette = DefaultPalette
	}

	limit := rate.Inf
	if config.Stagger > 0 {
		limit = rate.Every(config.Stagger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		config:  config,
		logger:  logger.With(zap.String("component", "workspace")),
		metrics: noopMetrics{},
		newID:   defaultID,
		sem:     semaphore.NewWeighted(int64(config.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, 1),
		mode:    ModeUpload,
		index:   make(map[string]*SceneObject),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.events = NewEventBus(w.logger)
	return w
}

// Events 返回工作区事件总线
func (w *Workspace) Events() *EventBus {
	return w.events
}

// Close 取消所有后台调用并等待其退出
func (w *Workspace) Close() {
	w.cancel()
	w.wg.Wait()
	w.events.Close()
}

// =============================================================================
// 会话控制
// =============================================================================

// LoadImage 整体替换会话。img 为 nil 时切换到上传模式，保留已加载图像；
// 非 nil 时清空点提示、掩码、对象、选中与全局错误，进入工作区模式。
// 未给出尺寸的图像会解码头部读取尺寸。
func (w *Workspace) LoadImage(img *types.SourceImage) error {
	if img == nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.mode = ModeUpload
		w.emitLocked(Event{Type: EventSessionLoaded, Message: string(ModeUpload)})
		return nil
	}
	if len(img.Data) == 0 {
		return types.NewError(types.ErrNoImage, "image data is empty")
	}

	loaded := &types.SourceImage{
		Data:   bytes.Clone(img.Data),
		MIME:   img.MIME,
		Width:  img.Width,
		Height: img.Height,
	}
	if !loaded.HasSize() {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(loaded.Data))
		if err != nil {
			return types.NewError(types.ErrInvalidRequest, "cannot read image dimensions").WithCause(err)
		}
		loaded.Width, loaded.Height = cfg.Width, cfg.Height
		if loaded.MIME == "" {
			loaded.MIME = "image/" + format
		}
	}
	if loaded.MIME == "" {
		loaded.MIME = http.DetectContentType(loaded.Data)
	}

	w.mu.Lock()
	w.resetLocked()
	w.image = loaded
	w.mode = ModeWorkspace
	w.errMsg = ""
	w.emitLocked(Event{Type: EventSessionLoaded, Message: string(ModeWorkspace)})
	w.mu.Unlock()

	w.logger.Info("image loaded",
		zap.String("mime", loaded.MIME),
		zap.Int("width", loaded.Width),
		zap.Int("height", loaded.Height))

	w.primeImage(loaded)
	return nil
}

// Reset 回到上传模式并丢弃图像与全部会话状态
func (w *Workspace) Reset() {
	w.mu.Lock()
	w.resetLocked()
	w.image = nil
	w.mode = ModeUpload
	w.errMsg = ""
	w.emitLocked(Event{Type: EventSessionReset})
	w.mu.Unlock()

	w.logger.Info("session reset")
}

// ResetScene 清空对象与待提交选择，保留图像
func (w *Workspace) ResetScene() {
	w.mu.Lock()
	w.resetLocked()
	w.emitLocked(Event{Type: EventSceneReset})
	w.mu.Unlock()

	w.logger.Info("scene reset")
}

// resetLocked 开启新的 epoch：旧累加器与旧对象上的异步结果全部作废
func (w *Workspace) resetLocked() {
	w.epoch++
	w.pending = pendingSelection{}
	w.masks = maskCoordinator{}
	w.objects = nil
	w.index = make(map[string]*SceneObject)
	w.selected = ""
	w.created = 0
	w.syncCountsLocked()
}

// SetError 设置全局错误
func (w *Workspace) SetError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setErrorLocked(msg)
}

func (w *Workspace) setErrorLocked(msg string) {
	if w.errMsg == msg {
		return
	}
	w.errMsg = msg
	w.emitLocked(Event{Type: EventErrorChanged, Message: msg})
}

// ClearError 清除全局错误
func (w *Workspace) ClearError() {
	w.SetError("")
}

// primeImage 异步调用分割服务预计算图像嵌入，失败只记录日志
func (w *Workspace) primeImage(img *types.SourceImage) {
	if !w.config.PrimeImage {
		return
	}
	preparer, ok := w.segmenter.(segment.ImagePreparer)
	if !ok {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := preparer.PrepareImage(w.ctx, img.Data); err != nil {
			w.logger.Warn("image priming failed", zap.Error(err))
		}
	}()
}

// emitLocked 在持锁状态下发布事件，使事件顺序与状态变更顺序一致
func (w *Workspace) emitLocked(ev Event) {
	w.events.Publish(ev)
}

// =============================================================================
// 读模型
// =============================================================================

// ImageInfo 已加载图像的元信息
type ImageInfo struct {
	MIME   string `json:"mime"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
}

// Snapshot 会话的只读快照
type Snapshot struct {
	Mode       Mode          `json:"mode"`
	Image      *ImageInfo    `json:"image,omitempty"`
	Points     []types.Point `json:"points"`
	Mask       *types.Mask   `json:"mask,omitempty"`
	Segmenting bool          `json:"segmenting"`
	Objects    []SceneObject `json:"objects"`
	SelectedID string        `json:"selected_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot 返回当前会话的深拷贝
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		Mode:       w.mode,
		Points:     clonePoints(w.pending.points),
		Mask:       w.pending.mask.Clone(),
		Segmenting: w.segmentingLocked(),
		Objects:    make([]SceneObject, 0, len(w.objects)),
		SelectedID: w.selected,
		Error:      w.errMsg,
	}
	if w.image != nil {
		snap.Image = &ImageInfo{
			MIME:   w.image.MIME,
			Width:  w.image.Width,
			Height: w.image.Height,
			Size:   len(w.image.Data),
		}
	}
	for _, obj := range w.objects {
		snap.Objects = append(snap.Objects, obj.clone())
	}
	return snap
}

// Image 返回已加载图像的副本
func (w *Workspace) Image() (*types.SourceImage, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.image == nil {
		return nil, false
	}
	img := *w.image
	img.Data = bytes.Clone(w.image.Data)
	return &img, true
}
