package api

import (
	"time"

	"github.com/BaSui01/sculptflow/types"
)

// =============================================================================
// 请求类型
// =============================================================================

// PointRequest 追加点提示
// @Description 源图像像素坐标系下的点提示
type PointRequest struct {
	X    float64 `json:"x" example:"100"`
	Y    float64 `json:"y" example:"100"`
	Kind string  `json:"kind" example:"positive"`
}

// ObjectPatchRequest 修改对象属性，nil 字段保持不变
type ObjectPatchRequest struct {
	Name    *string `json:"name,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
}

// SelectRequest 选中对象，空 ID 表示取消选中
type SelectRequest struct {
	ID string `json:"id"`
}

// ErrorRequest 设置全局错误
type ErrorRequest struct {
	Message string `json:"message"`
}

// =============================================================================
// 响应类型
// =============================================================================

// CommitResponse 提交结果
type CommitResponse struct {
	ID string `json:"id"`
}

// GenerateAllResponse 批量生成调度结果
type GenerateAllResponse struct {
	Scheduled []string `json:"scheduled"`
}

// ImageInfo 已加载图像
type ImageInfo struct {
	MIME   string `json:"mime"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
}

// MaskInfo 掩码元信息，载荷通过单独的下载端点获取
type MaskInfo struct {
	Encoding string           `json:"encoding"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Score    float64          `json:"score"`
	Source   types.MaskSource `json:"source"`
	Size     int              `json:"size"`
}

// NewMaskInfo 由掩码构造元信息，nil 返回 nil
func NewMaskInfo(m *types.Mask) *MaskInfo {
	if m == nil {
		return nil
	}
	return &MaskInfo{
		Encoding: m.Encoding,
		Width:    m.Width,
		Height:   m.Height,
		Score:    m.Score,
		Source:   m.Source,
		Size:     len(m.Data),
	}
}

// ObjectView 场景对象读模型
type ObjectView struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Color     string             `json:"color"`
	Points    []types.Point      `json:"points"`
	Mask      *MaskInfo          `json:"mask,omitempty"`
	Asset     *types.Asset       `json:"asset,omitempty"`
	Status    types.ObjectStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	Visible   bool               `json:"visible"`
	Transform types.Transform    `json:"transform"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SessionView 会话读模型
type SessionView struct {
	Mode       string        `json:"mode"`
	Image      *ImageInfo    `json:"image,omitempty"`
	Points     []types.Point `json:"points"`
	Mask       *MaskInfo     `json:"mask,omitempty"`
	Segmenting bool          `json:"segmenting"`
	Objects    []ObjectView  `json:"objects"`
	SelectedID string        `json:"selected_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}
