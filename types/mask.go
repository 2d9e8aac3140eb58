package types

// MaskSource 掩码来源
type MaskSource string

const (
	// MaskFromService 由外部分割服务生成
	MaskFromService MaskSource = "service"
	// MaskFromFallback 本地回退合成
	MaskFromFallback MaskSource = "fallback"
	// MaskFromUser 由用户直接提供（重新分割已提交对象）
	MaskFromUser MaskSource = "user"
)

// MaskEncodingPNG 单通道 PNG 编码
const MaskEncodingPNG = "png"

// Mask 覆盖源图像像素尺寸的区域掩码。Data 为不透明二进制载荷，
// 由 Encoding 描述其编码。
type Mask struct {
	Data     []byte     `json:"data"`
	Encoding string     `json:"encoding"`
	Width    int        `json:"width,omitempty"`
	Height   int        `json:"height,omitempty"`
	Score    float64    `json:"score"`
	Source   MaskSource `json:"source"`
}

// Clone returns a deep copy of m.
func (m *Mask) Clone() *Mask {
	if m == nil {
		return nil
	}
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	return &c
}
