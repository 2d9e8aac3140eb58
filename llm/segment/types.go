package segment

import (
	"context"
)

// Provider 分割服务提供者接口
type Provider interface {
	// Name 返回提供者名称
	Name() string

	// Segment 根据点提示返回候选掩码；任何失败（传输错误或 success=false）都以 error 返回
	Segment(ctx context.Context, req *SegmentRequest) (*SegmentResponse, error)

	// Health 健康探针
	Health(ctx context.Context) (*HealthStatus, error)
}

// ImagePreparer 可选能力：为后续多次分割预先计算图像 embedding。
type ImagePreparer interface {
	PrepareImage(ctx context.Context, image []byte) (*PreparedImage, error)
}

// TextSegmenter 可选能力：按文本提示（如 "person"、"car"）分割，
// 返回分数不低于阈值的全部候选掩码。
type TextSegmenter interface {
	SegmentText(ctx context.Context, image []byte, prompt string, threshold float64) (*SegmentResponse, error)
}

// DefaultTextThreshold 文本分割的默认置信度阈值
const DefaultTextThreshold = 0.5

// SegmentRequest 分割请求，携带完整的当前点提示集合（非增量）。
type SegmentRequest struct {
	Image     []byte
	Positive  [][2]float64
	Negative  [][2]float64
	MultiMask bool
}

// Candidate 单个候选掩码
type Candidate struct {
	Data  []byte  `json:"-"`
	Score float64 `json:"score"`
}

// SegmentResponse 分割响应
type SegmentResponse struct {
	Provider string      `json:"provider"`
	Masks    []Candidate `json:"masks"`
	Message  string      `json:"message,omitempty"`
}

// Best returns the highest-scoring candidate. Ties keep the earliest one.
func (r *SegmentResponse) Best() (Candidate, bool) {
	if r == nil || len(r.Masks) == 0 {
		return Candidate{}, false
	}
	best := r.Masks[0]
	for _, c := range r.Masks[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// PreparedImage /set_image 的结果
type PreparedImage struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Message string `json:"message,omitempty"`
}

// HealthStatus 分割服务健康状态
type HealthStatus struct {
	Status      string `json:"status"`
	Service     string `json:"service,omitempty"`
	Version     string `json:"version,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
}

// Healthy reports whether the service can run real inference.
// A server in "fallback" status answers but synthesizes masks itself.
func (h *HealthStatus) Healthy() bool {
	return h != nil && h.Status == "ok" && h.ModelLoaded
}
